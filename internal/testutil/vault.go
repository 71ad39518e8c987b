package testutil

import (
	"docchat/internal/docchat"
	"docchat/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() docchat.Vault {
	return vault.NewMemoryVault("test-vault")
}
