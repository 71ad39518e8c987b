package encryption

import (
	"fmt"

	"docchat/internal/config"
	"docchat/internal/docchat"
)

// NewSealerFromConfig creates a Sealer based on the configuration type.
func NewSealerFromConfig(cfg config.EncryptionConfig) (docchat.Sealer, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.KeyPath == "" {
			return nil, fmt.Errorf("age encryption requires key_path to be set")
		}
		return NewAgeSealer(cfg), nil
	case "test":
		return NewTestSealer(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
