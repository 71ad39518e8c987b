package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	envConfigPath = "DOCCHAT_CONFIG_PATH"
	envHome       = "DOCCHAT_HOME"
)

// Paths locates docchat's config file and the directory holding its local
// state: the encrypted sign-in session, the age key, the document store,
// staged uploads, saved transcripts and run logs.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// ResolvePaths returns the locations used before a config file exists.
// DOCCHAT_CONFIG_PATH overrides ~/.config/docchat.toml and DOCCHAT_HOME
// overrides ~/.local/share/docchat.
func ResolvePaths() (Paths, error) {
	configPath, err := fromEnvOrHome(envConfigPath, ".config", "docchat.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := fromEnvOrHome(envHome, ".local", "share", "docchat")
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func fromEnvOrHome(env string, rel ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for %s: %w", env, err)
	}
	return filepath.Join(append([]string{home}, rel...)...), nil
}
