package testutil

import (
	"myvc/internal/vault"
	"myvc/internal/vc"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() vc.Vault {
	return vault.NewMemoryVault("test-vault")
}
