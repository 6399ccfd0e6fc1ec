// Package outbox queues recorded operations until the transport accepts them.
package outbox

import (
	"fmt"
	"sync"

	"myvc/internal/vc"
)

// outbox implements vc.Outbox on top of a pluggable outboxStore. All queue
// logic lives here.
type outbox struct {
	store outboxStore
	mu    sync.Mutex
}

var _ vc.Outbox = (*outbox)(nil)

func (o *outbox) Enqueue(entry vc.OutboxEntry) error {
	if entry.Ref == "" {
		return fmt.Errorf("outbox entry has no ref")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	queued, err := o.store.Contains(entry.Ref)
	if err != nil {
		return err
	}
	if queued {
		return nil
	}
	if err := o.store.Append(entry); err != nil {
		return fmt.Errorf("adding to outbox: %w", err)
	}
	return nil
}

// ProcessNext gets the oldest entry and calls fn with it outside the lock.
// If fn returns nil, the entry is removed. If fn returns an error, the entry
// stays queued for retry and the error is returned.
func (o *outbox) ProcessNext(fn vc.DeliverFunc) (bool, error) {
	o.mu.Lock()
	entry, err := o.store.Peek()
	o.mu.Unlock()
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	if err := fn(*entry); err != nil {
		return true, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store.Pop(entry.Ref); err != nil {
		return true, fmt.Errorf("removing delivered entry: %w", err)
	}
	return true, nil
}

func (o *outbox) Count() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Len()
}
