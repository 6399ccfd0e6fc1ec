package vc

import "io"

// Vault is the remote archive that `push` uploads checkpoint bundles to.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// Name identifies the vault in logs and command output.
	Name() string

	// PutContent stores content identified by its checksum.
	// Storing the same checksum twice is safe.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent retrieves content by checksum and writes it to w.
	GetContent(checksum string, w io.Writer) error

	// PutMetadata stores a named metadata item for a project.
	// version is stored alongside it so pushes can be skipped when the
	// remote is already current. Known names: "checkpoints", "log".
	PutMetadata(projectID string, name string, r io.Reader, size int64, version int64) error

	// GetMetadata retrieves a named metadata item and writes it to w.
	GetMetadata(projectID string, name string, w io.Writer) error

	// GetMetadataVersion returns the stored version for a metadata item,
	// or 0 if nothing has been stored.
	GetMetadataVersion(projectID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible.
	ValidateSetup() error
}
