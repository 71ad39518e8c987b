package testutil

import (
	"docchat/internal/docchat"
	"docchat/internal/encryption"
)

// NewTestSealer creates a new test sealer for testing.
func NewTestSealer() docchat.Sealer {
	return encryption.NewTestSealer()
}
