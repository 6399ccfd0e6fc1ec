package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.json")

	if err := WriteFileAtomic(path, []byte("one"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "two" {
		t.Errorf("content = %q, want %q", got, "two")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (temp files left behind)", len(entries))
	}
}

func TestOSFilesystemManager(t *testing.T) {
	dir := t.TempDir()
	m := NewOSFilesystemManager(NewIgnoreMatcher([]string{"*.log"}))
	path := filepath.Join(dir, "a.txt")

	if err := m.WriteFile(path, []byte("hello\n")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := m.ReadFile(path)
	if err != nil || string(got) != "hello\n" {
		t.Fatalf("ReadFile() = %q, %v", got, err)
	}

	p, err := m.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.IsDir() || p.Info().Size() != 6 {
		t.Errorf("Resolve() = dir %v size %d", p.IsDir(), p.Info().Size())
	}

	if _, err := m.Resolve(filepath.Join(dir, "missing")); err == nil {
		t.Error("Resolve(missing) error = nil, want error")
	}

	if !m.IsIgnored("debug.log") || m.IsIgnored("a.txt") {
		t.Error("IsIgnored() does not follow configured patterns")
	}
}
