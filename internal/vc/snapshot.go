package vc

import (
	"fmt"
	"path/filepath"
)

// Snapshot stores the full current content of the file at rawPath and
// returns the snapshot ID.
func (s *Service) Snapshot(rawPath string) (string, error) {
	path, err := s.deps.Fsmgr.Resolve(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", rawPath, err)
	}
	if path.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", path.String())
	}
	rel, err := s.relPath(path.String())
	if err != nil {
		return "", err
	}
	content, err := s.deps.Fsmgr.ReadFile(path.String())
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.deps.Store.SaveSnapshot(rel, content)
	if err != nil {
		return "", fmt.Errorf("saving snapshot of %s: %w", rel, err)
	}
	return id, nil
}

// Snapshots lists stored snapshots, oldest first.
func (s *Service) Snapshots() ([]SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Store.ListSnapshots()
}

// Restore writes the content of snapshot id to outPath, or back to the file
// it was taken from when outPath is empty. It returns the path written.
// Encrypted snapshots require the store to have been unlocked.
func (s *Service) Restore(id, outPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := s.deps.Store.LoadSnapshot(id)
	if err != nil {
		return "", fmt.Errorf("loading snapshot %s: %w", id, err)
	}

	if outPath == "" {
		info, err := s.snapshotInfoLocked(id)
		if err != nil {
			return "", err
		}
		outPath = filepath.Join(s.root, filepath.FromSlash(info.Path))
	} else if !filepath.IsAbs(outPath) {
		abs, err := filepath.Abs(outPath)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", outPath, err)
		}
		outPath = abs
	}

	if err := s.deps.Fsmgr.WriteFile(outPath, content); err != nil {
		return "", fmt.Errorf("writing %s: %w", outPath, err)
	}
	s.deps.Logger.Info("snapshot restored", "id", id, "path", outPath, "size", len(content))
	return outPath, nil
}

func (s *Service) snapshotInfoLocked(id string) (*SnapshotInfo, error) {
	snaps, err := s.deps.Store.ListSnapshots()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	for i := range snaps {
		if snaps[i].ID == id {
			return &snaps[i], nil
		}
	}
	return nil, fmt.Errorf("snapshot %s has no listing entry", id)
}
