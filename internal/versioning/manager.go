// Package versioning keeps the last-known content of every tracked file and
// turns edits into line operations.
package versioning

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"myvc/internal/diff"
	"myvc/internal/vc"
)

var (
	// ErrNotFound is returned by AddFile when the file cannot be stat'ed.
	ErrNotFound = errors.New("file not found")
	// ErrNotTracked is returned for paths that were never added.
	ErrNotTracked = errors.New("file not tracked")
	// ErrRead is returned when a tracked file cannot be stat'ed or read.
	ErrRead = errors.New("reading file")
)

// FileState is the baseline a file is diffed against.
type FileState struct {
	Path    string
	Content []byte
	Size    int64
	ModTime time.Time
}

// Manager owns the baselines of tracked files.
// It is not safe for concurrent use; callers serialize access.
type Manager struct {
	fsmgr  vc.FilesystemManager
	differ *diff.Differ
	logger vc.Logger
	files  map[string]*FileState
}

// NewManager creates a Manager with no tracked files.
func NewManager(fsmgr vc.FilesystemManager, differ *diff.Differ, logger vc.Logger) *Manager {
	return &Manager{
		fsmgr:  fsmgr,
		differ: differ,
		logger: logger,
		files:  make(map[string]*FileState),
	}
}

// AddFile starts tracking path with its current content as the baseline.
// Adding an already tracked file is a no-op.
func (m *Manager) AddFile(path string) error {
	if _, ok := m.files[path]; ok {
		m.logger.Warn("file already tracked", "path", path)
		return nil
	}

	info, err := m.fsmgr.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	content, err := m.fsmgr.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}

	m.files[path] = &FileState{
		Path:    path,
		Content: content,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	m.logger.Debug("file tracked", "path", path, "size", info.Size())
	return nil
}

// RemoveFile stops tracking path and drops its baseline.
func (m *Manager) RemoveFile(path string) error {
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, path)
	}
	delete(m.files, path)
	m.logger.Debug("file untracked", "path", path)
	return nil
}

// DetectChanges diffs the current content of path against its baseline.
// A file whose mtime is unchanged is not read. The baseline is replaced
// only when at least one operation was produced.
func (m *Manager) DetectChanges(path string, author string) ([]vc.Operation, error) {
	state, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, path)
	}

	info, err := m.fsmgr.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}
	if info.ModTime().Equal(state.ModTime) {
		return nil, nil
	}

	content, err := m.fsmgr.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}

	ops := m.differ.Diff(state.Content, content, author)
	if len(ops) == 0 {
		return nil, nil
	}

	m.files[path] = &FileState{
		Path:    path,
		Content: content,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	stats := m.differ.Stats()
	m.logger.Debug("changes detected", "path", path, "ops", len(ops), "mode", stats.Mode)
	return ops, nil
}

// Baseline returns a copy of the tracked content of path.
func (m *Manager) Baseline(path string) ([]byte, bool) {
	state, ok := m.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), state.Content...), true
}

// IsTracked reports whether path has a baseline.
func (m *Manager) IsTracked(path string) bool {
	_, ok := m.files[path]
	return ok
}

// Tracked returns the tracked paths in sorted order.
func (m *Manager) Tracked() []string {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

var _ vc.Versioner = (*Manager)(nil)
