package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"myvc/internal/vc"
)

// ErrNotFound is returned when requested content or metadata does not exist.
var ErrNotFound = errors.New("not found in vault")

// FileSystemVault stores content and metadata as files in a directory tree:
//
//	<root>/
//	  content/
//	    <checksum>                 (checkpoint bundles, named by SHA-256)
//	  metadata/
//	    <projectID>/
//	      <name>.json
//	      <name>.version
type FileSystemVault struct {
	name        string
	root        string
	contentDir  string
	metadataDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	contentDir := filepath.Join(root, "content")
	metadataDir := filepath.Join(root, "metadata")

	for _, dir := range []string{contentDir, metadataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}

	return &FileSystemVault{
		name:        name,
		root:        root,
		contentDir:  contentDir,
		metadataDir: metadataDir,
	}, nil
}

// Name returns the configured vault name.
func (v *FileSystemVault) Name() string { return v.name }

// PutContent stores content identified by its checksum. Storing an existing
// checksum only drains r.
func (v *FileSystemVault) PutContent(checksum string, r io.Reader, size int64) error {
	if err := validName(checksum); err != nil {
		return err
	}
	destPath := filepath.Join(v.contentDir, checksum)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return writeFile(destPath, r, size)
}

// GetContent retrieves content by checksum and writes it to w.
func (v *FileSystemVault) GetContent(checksum string, w io.Writer) error {
	if err := validName(checksum); err != nil {
		return err
	}
	return readFile(filepath.Join(v.contentDir, checksum), w, "content "+checksum)
}

// PutMetadata stores a named metadata item for a project along with its version.
func (v *FileSystemVault) PutMetadata(projectID, name string, r io.Reader, size int64, version int64) error {
	dir, err := v.projectDir(projectID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	if err := writeFile(filepath.Join(dir, name+".json"), r, size); err != nil {
		return err
	}

	data := strconv.FormatInt(version, 10)
	return writeFile(filepath.Join(dir, name+".version"), strings.NewReader(data), int64(len(data)))
}

// GetMetadataVersion returns the stored version, or 0 if none exists.
func (v *FileSystemVault) GetMetadataVersion(projectID, name string) (int64, error) {
	dir, err := v.projectDir(projectID, name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name+".version"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// GetMetadata retrieves a named metadata item and writes it to w.
func (v *FileSystemVault) GetMetadata(projectID, name string, w io.Writer) error {
	dir, err := v.projectDir(projectID, name)
	if err != nil {
		return err
	}
	return readFile(filepath.Join(dir, name+".json"), w, fmt.Sprintf("metadata %q for project %s", name, projectID))
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.contentDir, v.metadataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

func (v *FileSystemVault) projectDir(projectID, name string) (string, error) {
	if err := validName(projectID); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(v.metadataDir, projectID), nil
}

// validName rejects identifiers that are not a single path component.
func validName(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid vault key %q", s)
	}
	return nil
}

// writeFile streams r to destPath through a temp file and an atomic rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func readFile(srcPath string, w io.Writer, what string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, what)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

var _ vc.Vault = (*FileSystemVault)(nil)
