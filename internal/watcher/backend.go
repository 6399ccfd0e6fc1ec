package watcher

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// backend is the source of raw change notifications. It is chosen once, at
// construction time.
type backend interface {
	name() string
	// add registers one directory. Recursion is the caller's job.
	add(dir string) error
	remove(dir string)
	events() <-chan fsnotify.Event
	errors() <-chan error
	close() error
}

// notifyBackend receives kernel notifications through fsnotify.
type notifyBackend struct {
	w *fsnotify.Watcher
}

func newNotifyBackend() (*notifyBackend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &notifyBackend{w: w}, nil
}

func (b *notifyBackend) name() string                  { return "notify" }
func (b *notifyBackend) add(dir string) error          { return b.w.Add(dir) }
func (b *notifyBackend) remove(dir string)             { _ = b.w.Remove(dir) }
func (b *notifyBackend) events() <-chan fsnotify.Event { return b.w.Events }
func (b *notifyBackend) errors() <-chan error          { return b.w.Errors }
func (b *notifyBackend) close() error                  { return b.w.Close() }

// pollBackend produces no events. Changes are found by PollChanges and Rescan.
type pollBackend struct{}

func (pollBackend) name() string                  { return "poll" }
func (pollBackend) add(string) error              { return nil }
func (pollBackend) remove(string)                 {}
func (pollBackend) events() <-chan fsnotify.Event { return nil }
func (pollBackend) errors() <-chan error          { return nil }
func (pollBackend) close() error                  { return nil }
