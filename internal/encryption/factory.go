package encryption

import (
	"fmt"

	"myvc/internal/config"
	"myvc/internal/vc"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" (the default) returns a nil Encryptor: snapshots are stored in
// plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (vc.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
