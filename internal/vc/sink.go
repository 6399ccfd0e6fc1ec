package vc

import (
	"context"
	"errors"
)

// ErrOffline is returned by a Sink that currently has no connection.
var ErrOffline = errors.New("transport offline")

// Sink receives recorded operations for delivery to collaborators.
type Sink interface {
	Send(ctx context.Context, op Operation) error
}

// DeliverFunc delivers one outbox entry. Returning an error leaves the
// entry queued.
type DeliverFunc func(entry OutboxEntry) error

// Outbox holds operations that have been recorded but not yet delivered.
// Entries leave the outbox in the order they were added.
type Outbox interface {
	// Enqueue appends an entry. An entry whose Ref is already queued is ignored.
	Enqueue(entry OutboxEntry) error

	// ProcessNext calls fn with the oldest entry and removes it if fn
	// succeeds. It reports whether an entry was found.
	ProcessNext(fn DeliverFunc) (bool, error)

	// Count returns the number of queued entries.
	Count() (int, error)
}

// OutboxEntry pairs an operation with the store record it was saved as.
type OutboxEntry struct {
	Ref       string    `json:"ref"`
	Operation Operation `json:"operation"`
}
