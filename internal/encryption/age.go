package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"myvc/internal/config"
	"myvc/internal/vc"
)

var (
	// ErrAlreadyConfigured is returned by Setup when a key pair already exists.
	ErrAlreadyConfigured = errors.New("encryption keys already exist")
	// ErrEmptyPassphrase is returned when Setup or Unlock gets no passphrase.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
	// ErrKeyMismatch is returned by Unlock when the private key does not
	// belong to the public key snapshots are sealed with.
	ErrKeyMismatch = errors.New("private key does not match public key")
)

// AgeEncryptor seals snapshot files for the store. Snapshots are written
// with only the public key, so `myvc snapshot` never prompts; reading one
// back with `myvc restore` needs the passphrase that protects the private
// key.
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string

	mu        sync.Mutex
	recipient *age.X25519Recipient
}

var _ vc.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor returns an encryptor for the key files named in cfg.
// The files need not exist until Setup is called.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Setup generates the project's snapshot key pair. Existing keys are never
// replaced, since snapshots sealed to them would become unreadable.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	if e.IsConfigured() {
		return fmt.Errorf("%w: %s", ErrAlreadyConfigured, e.publicKeyPath)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	if err := writeKeyFile(e.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	sealed, err := sealPrivateKey(identity, passphrase)
	if err != nil {
		return err
	}
	if err := writeKeyFile(e.privateKeyPath, sealed, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

func writeKeyFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// sealPrivateKey encrypts the identity with an scrypt passphrase recipient.
func sealPrivateKey(identity *age.X25519Identity, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	return buf.Bytes(), nil
}

// Encrypt seals the snapshot content read from r to the project's public key.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := e.loadRecipient()
	if err != nil {
		return err
	}

	sealed, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating snapshot writer: %w", err)
	}
	if _, err := io.Copy(sealed, r); err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := sealed.Close(); err != nil {
		return fmt.Errorf("finalizing snapshot: %w", err)
	}
	return nil
}

// Unlock opens the private key with passphrase. The key must belong to the
// configured public key, otherwise every restore would fail later with an
// opaque age error.
func (e *AgeEncryptor) Unlock(passphrase string) (vc.DecryptionContext, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	sealed, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	plain, err := age.Decrypt(bytes.NewReader(sealed), scrypt)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	keyData, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}

	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(keyData)))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	recipient, err := e.loadRecipient()
	if err != nil {
		return nil, err
	}
	if identity.Recipient().String() != recipient.String() {
		return nil, fmt.Errorf("%w: %s", ErrKeyMismatch, e.privateKeyPath)
	}

	return &AgeDecryptionContext{identity: identity}, nil
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, p := range []string{e.publicKeyPath, e.privateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// loadRecipient parses the public key once per encryptor.
func (e *AgeEncryptor) loadRecipient() (*age.X25519Recipient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recipient != nil {
		return e.recipient, nil
	}

	data, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	recipient, err := age.ParseX25519Recipient(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", e.publicKeyPath, err)
	}
	e.recipient = recipient
	return recipient, nil
}

// AgeDecryptionContext opens snapshots sealed by AgeEncryptor. The store
// keeps one for the lifetime of a command after the user has unlocked it.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ vc.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt writes the plaintext of the sealed snapshot read from r to w.
func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}
