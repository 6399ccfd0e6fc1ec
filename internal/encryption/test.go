package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"myvc/internal/vc"
)

// ErrNotSealed is returned when a snapshot lacks the "test" encryption marker.
var ErrNotSealed = errors.New("snapshot not sealed by test encryptor")

// sealMarker prefixes snapshots written with encryption type "test".
var sealMarker = []byte("MYVCSNAP")

// TestEncryptor backs the "test" encryption type. A sealed snapshot is the
// marker followed by the plaintext, so the store's encrypted path can be
// exercised without key files or prompts. Any passphrase unlocks it.
type TestEncryptor struct {
	setupCalled bool
}

var _ vc.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(sealMarker); err != nil {
		return fmt.Errorf("writing seal marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(string) (vc.DecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

// TestDecryptionContext opens snapshots sealed by TestEncryptor.
type TestDecryptionContext struct{}

var _ vc.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	marker := make([]byte, len(sealMarker))
	if _, err := io.ReadFull(r, marker); err != nil || !bytes.Equal(marker, sealMarker) {
		return ErrNotSealed
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	return nil
}
