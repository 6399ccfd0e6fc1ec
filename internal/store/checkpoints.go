package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"myvc/internal/vc"
)

const checkpointPrefix = "checkpoint_"

// CreateCheckpoint records a checkpoint that references every operation
// record listed in log.json at this moment. Checkpoints are cumulative: each
// one lists the full history, not the operations since the previous one.
func (s *Store) CreateCheckpoint(message, author string) (*vc.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLogLocked()
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, e.File)
	}

	ts := s.clock.Now().UnixNano()
	cp := &vc.Checkpoint{
		ID:         s.idgen.New(),
		Timestamp:  ts,
		Message:    message,
		Author:     author,
		Operations: refs,
	}

	name := s.uniqueName(versionsDir, fmt.Sprintf("%s%d", checkpointPrefix, ts), ".json")
	if err := s.writeJSON(path.Join(versionsDir, name), cp); err != nil {
		return nil, err
	}

	s.logger.Info("checkpoint created", "id", cp.ID, "operations", len(refs), "message", message)
	return cp, nil
}

// ListCheckpoints returns all checkpoints ordered oldest first. Records
// that fail to parse are skipped.
func (s *Store) ListCheckpoints() ([]*vc.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, versionsDir))
	if err != nil {
		return nil, fmt.Errorf("reading versions: %w", err)
	}

	var out []*vc.Checkpoint
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, checkpointPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, versionsDir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint", "name", name, "error", err)
			continue
		}
		var cp vc.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			s.logger.Warn("skipping malformed checkpoint", "name", name, "error", err)
			continue
		}
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// LoadCheckpoint finds a checkpoint by ID or by unique ID prefix.
func (s *Store) LoadCheckpoint(id string) (*vc.Checkpoint, error) {
	all, err := s.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	var match *vc.Checkpoint
	for _, cp := range all {
		if cp.ID == id {
			return cp, nil
		}
		if id != "" && strings.HasPrefix(cp.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("%w: checkpoint prefix %q is ambiguous", ErrNotFound, id)
			}
			match = cp
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: checkpoint %s", ErrNotFound, id)
	}
	return match, nil
}
