package outbox

import (
	"fmt"

	"myvc/internal/vc"
)

// memoryStore keeps the queue in a slice. Entries are lost on exit.
type memoryStore struct {
	entries []vc.OutboxEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (m *memoryStore) Append(entry vc.OutboxEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryStore) Peek() (*vc.OutboxEntry, error) {
	if len(m.entries) == 0 {
		return nil, nil
	}
	e := m.entries[0]
	return &e, nil
}

func (m *memoryStore) Pop(ref string) error {
	i := indexOf(m.entries, ref)
	if i < 0 {
		return fmt.Errorf("entry not queued: %s", ref)
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return nil
}

func (m *memoryStore) Len() (int, error) {
	return len(m.entries), nil
}

func (m *memoryStore) Contains(ref string) (bool, error) {
	return indexOf(m.entries, ref) >= 0, nil
}

func indexOf(entries []vc.OutboxEntry, ref string) int {
	for i, e := range entries {
		if e.Ref == ref {
			return i
		}
	}
	return -1
}

// NewMemoryOutbox creates an outbox that does not survive restarts.
func NewMemoryOutbox() vc.Outbox {
	return &outbox{store: newMemoryStore()}
}
