package docchat

import "io"

// Sealer encrypts small secrets at rest, such as the saved auth session.
// Unlike a passphrase scheme, sealing and opening need no user interaction:
// the key material lives on disk with owner-only permissions.
type Sealer interface {
	// Setup performs one-time key generation. It is a no-op when keys exist.
	Setup() error

	// Seal encrypts data read from r and writes ciphertext to w.
	Seal(r io.Reader, w io.Writer) error

	// Open decrypts data read from r and writes plaintext to w.
	Open(r io.Reader, w io.Writer) error

	// IsConfigured returns true if key material exists.
	IsConfigured() bool
}
