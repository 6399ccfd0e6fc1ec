package outbox

import "myvc/internal/vc"

// outboxStore abstracts where queued entries live. Concurrency is managed by
// the caller (outbox.mu), so stores need not be safe for concurrent use.
type outboxStore interface {
	// Append adds an entry to the end of the queue.
	Append(entry vc.OutboxEntry) error

	// Peek returns the first entry without removing it, or nil if the queue
	// is empty.
	Peek() (*vc.OutboxEntry, error)

	// Pop removes the first entry with the given ref.
	Pop(ref string) error

	// Len returns the number of queued entries.
	Len() (int, error)

	// Contains reports whether an entry with ref is queued.
	Contains(ref string) (bool, error)
}
