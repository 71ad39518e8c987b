package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"

	"docchat/internal/config"
	"docchat/internal/docchat"
)

// AgeSealer implements docchat.Sealer using filippo.io/age with an X25519
// identity. The identity is stored unencrypted in a single owner-only file,
// so sealing and opening need no user interaction.
type AgeSealer struct {
	keyPath string
}

var _ docchat.Sealer = (*AgeSealer)(nil)

// NewAgeSealer creates a new AgeSealer from configuration.
func NewAgeSealer(cfg config.EncryptionConfig) *AgeSealer {
	return &AgeSealer{keyPath: cfg.KeyPath}
}

// Setup generates a new X25519 identity and writes it to the key file.
// An existing key file is left untouched.
func (e *AgeSealer) Setup() error {
	if e.IsConfigured() {
		return nil
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	// Ensure key directory exists.
	if err := os.MkdirAll(filepath.Dir(e.keyPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	keyFile, err := os.OpenFile(e.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	defer keyFile.Close()

	content := fmt.Sprintf("# public key: %s\n%s\n", identity.Recipient(), identity)
	if _, err := io.WriteString(keyFile, content); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}

	return nil
}

// Seal reads plaintext from r and writes age-encrypted ciphertext to w.
func (e *AgeSealer) Seal(r io.Reader, w io.Writer) error {
	identity, err := e.loadIdentity()
	if err != nil {
		return fmt.Errorf("loading key: %w", err)
	}

	encWriter, err := age.Encrypt(w, identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return nil
}

// Open reads age-encrypted ciphertext from r and writes plaintext to w.
func (e *AgeSealer) Open(r io.Reader, w io.Writer) error {
	identity, err := e.loadIdentity()
	if err != nil {
		return fmt.Errorf("loading key: %w", err)
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}

	return nil
}

// IsConfigured returns true if the key file exists.
func (e *AgeSealer) IsConfigured() bool {
	_, err := os.Stat(e.keyPath)
	return err == nil
}

// loadIdentity reads the key file from disk and parses it.
func (e *AgeSealer) loadIdentity() (*age.X25519Identity, error) {
	keyData, err := os.ReadFile(e.keyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("key file not found: %s", e.keyPath)
		}
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}

	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity found in key file")
}
