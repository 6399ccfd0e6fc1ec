package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"myvc/internal/vc"
)

// MemoryVault keeps content and metadata in memory. It backs the "memory"
// vault type and tests. Safe for concurrent use.
type MemoryVault struct {
	name            string
	content         map[string][]byte // checksum -> content
	metadata        map[string][]byte // "projectID/name" -> metadata
	metadataVersion map[string]int64  // "projectID/name" -> version
	mu              sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:            name,
		content:         make(map[string][]byte),
		metadata:        make(map[string][]byte),
		metadataVersion: make(map[string]int64),
	}
}

// Name returns the configured vault name.
func (m *MemoryVault) Name() string { return m.name }

// metadataKey returns the map key for a project/name pair.
func metadataKey(projectID, name string) string {
	return projectID + "/" + name
}

// PutContent stores content identified by its checksum.
func (m *MemoryVault) PutContent(checksum string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same checksum multiple times is safe
	m.content[checksum] = data
	return nil
}

// GetContent retrieves content by checksum.
func (m *MemoryVault) GetContent(checksum string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[checksum]
	if !ok {
		return fmt.Errorf("%w: content %s", ErrNotFound, checksum)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	return nil
}

// PutMetadata stores a named metadata item for a project.
func (m *MemoryVault) PutMetadata(projectID string, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := metadataKey(projectID, name)
	m.metadata[key] = data
	m.metadataVersion[key] = version
	return nil
}

// GetMetadataVersion returns the metadata version for a named item for a project.
// Returns 0 if no metadata has been stored for this project/name.
func (m *MemoryVault) GetMetadataVersion(projectID string, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metadataVersion[metadataKey(projectID, name)], nil
}

// GetMetadata retrieves a named metadata item for a project.
func (m *MemoryVault) GetMetadata(projectID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := metadataKey(projectID, name)
	data, ok := m.metadata[key]
	if !ok {
		return fmt.Errorf("%w: metadata %q for project %s", ErrNotFound, name, projectID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ vc.Vault = (*MemoryVault)(nil)
