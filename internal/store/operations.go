package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"myvc/internal/vc"
)

// SaveOperation writes op as its own record, appends a reference to
// log.json, and bumps the index's last_operation_id. It returns the record
// path relative to the metadata directory.
func (s *Store) SaveOperation(op vc.Operation) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLogLocked()
	if err != nil {
		return "", err
	}
	idx, err := s.readIndexLocked()
	if err != nil {
		return "", err
	}

	base := fmt.Sprintf("%d_%s", op.Timestamp.UnixNano(), safeName(op.Author))
	name := s.uniqueName(opsDir, base, ".json")
	ref := path.Join(opsDir, name)
	if err := s.writeJSON(ref, op); err != nil {
		return "", err
	}

	entries = append(entries, vc.LogEntry{
		Timestamp: op.Timestamp.UnixNano(),
		Kind:      op.Kind.String(),
		Author:    op.Author,
		File:      ref,
	})
	if err := s.writeJSON(logFile, entries); err != nil {
		s.removeLocked(ref)
		return "", err
	}
	idx.LastOperationID++
	if err := s.writeJSON(indexFile, idx); err != nil {
		return "", err
	}

	s.logger.Debug("operation saved", "ref", ref, "kind", op.Kind, "path", op.Path)
	return ref, nil
}

// removeLocked deletes a record that never made it into log.json.
func (s *Store) removeLocked(ref string) {
	if err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(ref))); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing orphaned record", "ref", ref, "error", err)
	}
}

// LoadLog returns the entries of log.json in order.
func (s *Store) LoadLog() ([]vc.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLogLocked()
}

func (s *Store) readLogLocked() ([]vc.LogEntry, error) {
	var entries []vc.LogEntry
	if err := s.readJSON(logFile, &entries); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return entries, nil
}

// LoadOperations returns every operation referenced by log.json in log
// order. Records that are missing or fail to parse are skipped.
func (s *Store) LoadOperations() ([]vc.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLogLocked()
	if err != nil {
		return nil, err
	}

	ops := make([]vc.Operation, 0, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(e.File)))
		if err != nil {
			s.logger.Warn("skipping unreadable operation record", "file", e.File, "error", err)
			continue
		}
		var op vc.Operation
		if err := json.Unmarshal(data, &op); err != nil {
			s.logger.Warn("skipping malformed operation record", "file", e.File, "error", err)
			continue
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// LoadOperation reads a single record by its log reference.
func (s *Store) LoadOperation(ref string) (vc.Operation, error) {
	var op vc.Operation
	if !validRef(ref) {
		return op, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return op, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return op, fmt.Errorf("reading %s: %w", ref, err)
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return op, fmt.Errorf("decoding %s: %w", ref, err)
	}
	return op, nil
}

// safeName makes an author usable as part of a file name.
func safeName(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '@':
			return r
		default:
			return '_'
		}
	}, s)
}

// validRef rejects references that would escape the metadata directory.
func validRef(ref string) bool {
	clean := path.Clean(ref)
	return ref != "" && !path.IsAbs(clean) && clean != ".." && !strings.HasPrefix(clean, "../")
}
