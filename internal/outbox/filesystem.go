package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	vcfs "myvc/internal/fs"
	"myvc/internal/vc"
)

// QueueFileName is the queue file inside the outbox directory.
const QueueFileName = "queue.json"

// fileStore persists the queue as a JSON array in queue.json. The whole file
// is rewritten atomically after every change; the in-memory copy is loaded
// once when the store is opened.
type fileStore struct {
	path    string
	entries []vc.OutboxEntry
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create outbox directory: %w", err)
	}
	s := &fileStore{path: filepath.Join(dir, QueueFileName)}

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading outbox queue: %w", err)
	default:
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("decoding outbox queue %s: %w", s.path, err)
		}
	}
	return s, nil
}

func (s *fileStore) save(entries []vc.OutboxEntry) error {
	if entries == nil {
		entries = []vc.OutboxEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding outbox queue: %w", err)
	}
	if err := vcfs.WriteFileAtomic(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing outbox queue: %w", err)
	}
	s.entries = entries
	return nil
}

func (s *fileStore) Append(entry vc.OutboxEntry) error {
	next := make([]vc.OutboxEntry, 0, len(s.entries)+1)
	next = append(next, s.entries...)
	return s.save(append(next, entry))
}

func (s *fileStore) Peek() (*vc.OutboxEntry, error) {
	if len(s.entries) == 0 {
		return nil, nil
	}
	e := s.entries[0]
	return &e, nil
}

func (s *fileStore) Pop(ref string) error {
	i := indexOf(s.entries, ref)
	if i < 0 {
		return fmt.Errorf("entry not queued: %s", ref)
	}
	next := make([]vc.OutboxEntry, 0, len(s.entries)-1)
	next = append(next, s.entries[:i]...)
	return s.save(append(next, s.entries[i+1:]...))
}

func (s *fileStore) Len() (int, error) {
	return len(s.entries), nil
}

func (s *fileStore) Contains(ref string) (bool, error) {
	return indexOf(s.entries, ref) >= 0, nil
}

// NewFileSystemOutbox opens (or creates) the outbox persisted in dir.
func NewFileSystemOutbox(dir string) (vc.Outbox, error) {
	store, err := newFileStore(dir)
	if err != nil {
		return nil, err
	}
	return &outbox{store: store}, nil
}
