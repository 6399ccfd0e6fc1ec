package testutil

import (
	"myvc/internal/encryption"
	"myvc/internal/vc"
)

// NewTestEncryptor creates a deterministic encryptor for testing.
func NewTestEncryptor() vc.Encryptor {
	return encryption.NewTestEncryptor()
}
