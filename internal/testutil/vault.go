package testutil

import (
	"dt-go/internal/dt"
	"dt-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() dt.Vault {
	return vault.NewMemoryVault("test-vault")
}
