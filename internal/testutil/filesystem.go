package testutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"myvc/internal/vc"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// It counts ReadFile calls per path so tests can assert that unchanged files
// are not read.
type MockFilesystemManager struct {
	mu      sync.Mutex
	files   map[string]*MockFile
	reads   map[string]int
	ignored []string
	clock   vc.Clock
}

// NewMockFilesystemManager creates a new mock filesystem. Modification times
// come from a FixedClock advanced by one second per write.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
		reads: make(map[string]int),
		clock: NewTickingClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), time.Second),
	}
}

// AddFile adds or replaces a file in the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Content:     append([]byte(nil), content...),
		Permissions: 0644,
		ModTime:     m.clock.Now(),
	}
}

// SetFile replaces a file's content while keeping its modification time.
// Used to simulate edits that do not move the mtime.
func (m *MockFilesystemManager) SetFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path]; ok {
		f.Content = append([]byte(nil), content...)
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     m.clock.Now(),
		IsDirectory: true,
	}
}

// Remove deletes a path from the mock filesystem.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Ignore registers a relative path prefix that IsIgnored reports as ignored.
func (m *MockFilesystemManager) Ignore(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored = append(m.ignored, prefix)
}

// Reads returns how many times ReadFile was called for path.
func (m *MockFilesystemManager) Reads(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[path]
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*vc.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}
	info, err := m.Stat(absPath)
	if err != nil {
		return nil, err
	}
	return vc.NewPath(absPath, info.IsDir(), info), nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", path, fs.ErrNotExist)
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}, nil
}

func (m *MockFilesystemManager) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[path]++
	file, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot read directory: %s", path)
	}
	return append([]byte(nil), file.Content...), nil
}

func (m *MockFilesystemManager) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Content:     append([]byte(nil), data...),
		Permissions: 0644,
		ModTime:     m.clock.Now(),
	}
	return nil
}

func (m *MockFilesystemManager) IsIgnored(relPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.ignored {
		if strings.HasPrefix(relPath, p) {
			return true
		}
	}
	return false
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ vc.FilesystemManager = (*MockFilesystemManager)(nil)
