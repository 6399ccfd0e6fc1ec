package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"myvc/internal/vc"
)

// runVaultContract exercises the behavior every vc.Vault implementation shares.
func runVaultContract(t *testing.T, newVault func(t *testing.T) vc.Vault) {
	t.Run("put and get content", func(t *testing.T) {
		v := newVault(t)
		data := `{"checkpoint":{"id":"c1"},"operations":[]}`
		if err := v.PutContent("abc123", strings.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}
		var buf bytes.Buffer
		if err := v.GetContent("abc123", &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("GetContent() = %q, want %q", buf.String(), data)
		}
	})

	t.Run("put content is idempotent", func(t *testing.T) {
		v := newVault(t)
		for i := 0; i < 2; i++ {
			if err := v.PutContent("same", strings.NewReader("hello"), 5); err != nil {
				t.Fatalf("PutContent() #%d error = %v", i+1, err)
			}
		}
		var buf bytes.Buffer
		if err := v.GetContent("same", &buf); err != nil || buf.String() != "hello" {
			t.Errorf("GetContent() = %q, %v", buf.String(), err)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		v := newVault(t)
		if err := v.PutContent("short", strings.NewReader("hello"), 100); err == nil {
			t.Error("PutContent() with wrong size expected error")
		}
	})

	t.Run("missing content", func(t *testing.T) {
		v := newVault(t)
		var buf bytes.Buffer
		if err := v.GetContent("nope", &buf); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetContent() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("metadata with versions", func(t *testing.T) {
		v := newVault(t)
		if got, err := v.GetMetadataVersion("proj", "checkpoints"); err != nil || got != 0 {
			t.Fatalf("GetMetadataVersion() before put = %d, %v; want 0, nil", got, err)
		}

		for version, body := range map[int64]string{3: "[1,2,3]", 7: "[1,2,3,4,5,6,7]"} {
			if err := v.PutMetadata("proj", "log", strings.NewReader(body), int64(len(body)), version); err != nil {
				t.Fatalf("PutMetadata() error = %v", err)
			}
		}
		body := `["c1"]`
		if err := v.PutMetadata("proj", "checkpoints", strings.NewReader(body), int64(len(body)), 12); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}

		got, err := v.GetMetadataVersion("proj", "checkpoints")
		if err != nil || got != 12 {
			t.Errorf("GetMetadataVersion() = %d, %v; want 12", got, err)
		}
		var buf bytes.Buffer
		if err := v.GetMetadata("proj", "checkpoints", &buf); err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if buf.String() != body {
			t.Errorf("GetMetadata() = %q, want %q", buf.String(), body)
		}

		if got, _ := v.GetMetadataVersion("other", "checkpoints"); got != 0 {
			t.Errorf("GetMetadataVersion(other project) = %d, want 0", got)
		}
	})

	t.Run("missing metadata", func(t *testing.T) {
		v := newVault(t)
		var buf bytes.Buffer
		if err := v.GetMetadata("proj", "log", &buf); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetMetadata() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := newVault(t).ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryVault(t *testing.T) {
	runVaultContract(t, func(t *testing.T) vc.Vault {
		return NewMemoryVault("mem")
	})
}

func TestFileSystemVault(t *testing.T) {
	runVaultContract(t, func(t *testing.T) vc.Vault {
		v, err := NewFileSystemVault("fs", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		return v
	})
}
