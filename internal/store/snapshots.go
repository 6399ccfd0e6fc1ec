package store

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"myvc/internal/vc"
)

const (
	snapshotExt          = ".snapshot"
	encryptedSnapshotExt = ".snapshot.age"
)

var (
	flattener   = strings.NewReplacer("%", "%25", "/", "%2F")
	unflattener = strings.NewReplacer("%2F", "/", "%25", "%")
)

// FlattenPath turns a project-relative path into a single file-name component.
func FlattenPath(p string) string { return flattener.Replace(filepath.ToSlash(p)) }

// UnflattenPath reverses FlattenPath.
func UnflattenPath(s string) string { return unflattener.Replace(s) }

// SaveSnapshot stores the full content of the file at relPath and returns
// the snapshot ID. With an encryptor configured the record is encrypted.
func (s *Store) SaveSnapshot(relPath string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := snapshotExt
	data := content
	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(content), &buf); err != nil {
			return "", fmt.Errorf("encrypting snapshot: %w", err)
		}
		data = buf.Bytes()
		ext = encryptedSnapshotExt
	}

	ts := s.clock.Now().UnixNano()
	flat := FlattenPath(relPath)
	id := fmt.Sprintf("%d_%s", ts, flat)
	for n := 1; s.snapshotExistsLocked(id); n++ {
		id = fmt.Sprintf("%d-%d_%s", ts, n, flat)
	}

	rel := path.Join(versionsDir, id+ext)
	if err := s.writeRaw(rel, data); err != nil {
		return "", err
	}
	s.logger.Info("snapshot saved", "id", id, "path", relPath, "size", len(content))
	return id, nil
}

func (s *Store) writeRaw(rel string, data []byte) error {
	return writeFile(filepath.Join(s.dir, filepath.FromSlash(rel)), data, rel)
}

func (s *Store) snapshotExistsLocked(id string) bool {
	for _, ext := range []string{snapshotExt, encryptedSnapshotExt} {
		if _, err := os.Stat(filepath.Join(s.dir, versionsDir, id+ext)); err == nil {
			return true
		}
	}
	return false
}

// LoadSnapshot returns the content of a snapshot. Encrypted snapshots need a
// decryption context supplied through Unlock.
func (s *Store) LoadSnapshot(id string) ([]byte, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, "checkpoint_") {
		return nil, fmt.Errorf("%w: snapshot %q", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data, err := os.ReadFile(filepath.Join(s.dir, versionsDir, id+snapshotExt)); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, versionsDir, id+encryptedSnapshotExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: snapshot %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}
	if s.decryptor == nil {
		return nil, fmt.Errorf("%w: %s", ErrEncrypted, id)
	}
	var buf bytes.Buffer
	if err := s.decryptor.Decrypt(bytes.NewReader(data), &buf); err != nil {
		return nil, fmt.Errorf("decrypting snapshot %s: %w", id, err)
	}
	return buf.Bytes(), nil
}

// SnapshotEncrypted reports whether the snapshot with id is stored encrypted.
func (s *Store) SnapshotEncrypted(id string) bool {
	_, err := os.Stat(filepath.Join(s.dir, versionsDir, id+encryptedSnapshotExt))
	return err == nil
}

// ListSnapshots returns all snapshots ordered by timestamp.
func (s *Store) ListSnapshots() ([]vc.SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, versionsDir))
	if err != nil {
		return nil, fmt.Errorf("reading versions: %w", err)
	}

	var out []vc.SnapshotInfo
	for _, e := range entries {
		name := e.Name()
		var id string
		var encrypted bool
		switch {
		case strings.HasSuffix(name, encryptedSnapshotExt):
			id, encrypted = strings.TrimSuffix(name, encryptedSnapshotExt), true
		case strings.HasSuffix(name, snapshotExt):
			id = strings.TrimSuffix(name, snapshotExt)
		default:
			continue
		}
		info, err := parseSnapshotID(id)
		if err != nil {
			s.logger.Warn("skipping snapshot with unexpected name", "name", name)
			continue
		}
		if fi, err := e.Info(); err == nil {
			info.Size = fi.Size()
		}
		info.Encrypted = encrypted
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func parseSnapshotID(id string) (vc.SnapshotInfo, error) {
	ts, flat, ok := strings.Cut(id, "_")
	if !ok {
		return vc.SnapshotInfo{}, fmt.Errorf("malformed snapshot id %q", id)
	}
	ts, _, _ = strings.Cut(ts, "-")
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return vc.SnapshotInfo{}, fmt.Errorf("malformed snapshot id %q: %w", id, err)
	}
	return vc.SnapshotInfo{ID: id, Path: UnflattenPath(flat), Timestamp: n}, nil
}
