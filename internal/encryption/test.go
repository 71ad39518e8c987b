package encryption

import (
	"bytes"
	"fmt"
	"io"

	"docchat/internal/docchat"
)

// testHeader is prepended to data by TestSealer to make sealed output
// clearly different from plaintext while remaining deterministic and reversible.
var testHeader = []byte("DCSEAL\x00\x00")

// TestSealer is a simple, deterministic sealer for testing.
// It prepends a fixed 8-byte header when sealing and strips it when
// opening. Sealed output differs from plaintext while being trivially
// reversible and requiring no crypto.
type TestSealer struct {
	setupCalled bool
}

var _ docchat.Sealer = (*TestSealer)(nil)

// NewTestSealer creates a new TestSealer.
func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (e *TestSealer) Setup() error {
	e.setupCalled = true
	return nil
}

func (e *TestSealer) Seal(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestSealer) Open(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test seal header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestSealer) IsConfigured() bool {
	return true
}
