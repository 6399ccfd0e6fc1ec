package vc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// ApplyFunc replays one batch of line operations onto content.
type ApplyFunc func(content []byte, ops []Operation) ([]byte, error)

// Deps are the collaborators of a Service. Vault, Database and Apply are
// optional; the operations that need them fail with ErrUnavailable.
type Deps struct {
	Versioner Versioner
	Store     OperationStore
	Outbox    Outbox
	Sink      Sink
	Vault     Vault
	Database  Database
	Fsmgr     FilesystemManager
	Logger    Logger
	Clock     Clock
	// Apply, when set, is used to check every detected batch against the
	// file it was computed from.
	Apply ApplyFunc
}

// ErrUnavailable is returned when an operation needs an optional
// collaborator that was not configured.
var ErrUnavailable = errors.New("not configured")

// Service is the orchestration layer between the watcher, the versioning
// manager, the store, and the transport. It serializes every call into the
// versioning manager and the store.
type Service struct {
	mu sync.Mutex

	root   string
	author string
	deps   Deps

	pending chan struct{}
}

// NewService creates a Service for the project rooted at root (absolute).
// Operations recorded locally are attributed to author.
func NewService(root, author string, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = NewNopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	return &Service{
		root:    root,
		author:  author,
		deps:    deps,
		pending: make(chan struct{}, 1),
	}
}

// Root returns the project root.
func (s *Service) Root() string { return s.root }

// Author returns the name local operations are attributed to.
func (s *Service) Author() string { return s.author }

// Pending is signalled whenever new operations enter the outbox.
func (s *Service) Pending() <-chan struct{} { return s.pending }

// Track starts tracking paths with their current content as baseline. No
// operations are recorded. Paths that cannot be added are logged and
// skipped. It returns the number of newly tracked files.
func (s *Service) Track(paths []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracked := make(map[string]bool)
	for _, p := range s.deps.Versioner.Tracked() {
		tracked[p] = true
	}

	n := 0
	for _, p := range paths {
		if tracked[p] {
			continue
		}
		if err := s.deps.Versioner.AddFile(p); err != nil {
			s.deps.Logger.Warn("cannot track file", "path", p, "error", err)
			continue
		}
		tracked[p] = true
		n++
	}
	s.deps.Logger.Info("tracking files", "added", n, "total", len(tracked))
	return n
}

// OnChange turns a watcher event into recorded operations. It implements the
// watcher's Handler interface. Errors are logged; nothing is returned to the
// watcher.
func (s *Service) OnChange(ev FileEvent) {
	if _, err := s.HandleChange(ev); err != nil {
		s.deps.Logger.Error("recording change failed", "path", ev.Path, "kind", ev.Kind, "error", err)
	}
}

// HandleChange records the operations for one file event and returns them.
//
//   - Created, or Modified for an untracked file: the file is tracked and a
//     create operation carrying the full content is recorded.
//   - Modified: the line operations from the versioning manager are recorded.
//   - Deleted: the file is untracked and a delete_file operation is recorded.
//
// Events for ignored paths are dropped.
func (s *Service) HandleChange(ev FileEvent) ([]Operation, error) {
	rel, err := s.relPath(ev.Path)
	if err != nil {
		return nil, err
	}

	if s.deps.Fsmgr.IsIgnored(rel) {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	isTracked := s.deps.Versioner.IsTracked(ev.Path)

	var ops []Operation
	switch {
	case ev.Kind == Deleted:
		if !isTracked {
			return nil, nil
		}
		if err := s.deps.Versioner.RemoveFile(ev.Path); err != nil {
			return nil, fmt.Errorf("untracking %s: %w", rel, err)
		}
		ops = []Operation{{Kind: OpDeleteFile, Author: s.author, Timestamp: s.deps.Clock.Now()}}

	case !isTracked:
		if err := s.deps.Versioner.AddFile(ev.Path); err != nil {
			return nil, fmt.Errorf("tracking %s: %w", rel, err)
		}
		content, _ := s.deps.Versioner.Baseline(ev.Path)
		ops = []Operation{{Kind: OpCreate, Text: string(content), Author: s.author, Timestamp: s.deps.Clock.Now()}}

	default:
		before, _ := s.deps.Versioner.Baseline(ev.Path)
		ops, err = s.deps.Versioner.DetectChanges(ev.Path, s.author)
		if err != nil {
			return nil, fmt.Errorf("detecting changes in %s: %w", rel, err)
		}
		if len(ops) > 0 && s.deps.Apply != nil {
			s.verifyLocked(ev.Path, before, ops)
		}
	}

	if len(ops) == 0 {
		return nil, nil
	}
	for i := range ops {
		ops[i].Path = rel
	}
	if err := s.recordLocked(ops); err != nil {
		return nil, err
	}
	s.deps.Logger.Info("change recorded", "path", rel, "kind", ev.Kind, "source", ev.Source, "operations", len(ops))
	return ops, nil
}

func (s *Service) verifyLocked(path string, before []byte, ops []Operation) {
	after, _ := s.deps.Versioner.Baseline(path)
	got, err := s.deps.Apply(before, ops)
	if err != nil {
		s.deps.Logger.Error("diff verification failed", "path", path, "error", err)
		return
	}
	if string(got) != string(after) {
		s.deps.Logger.Error("diff verification mismatch", "path", path, "operations", len(ops))
	}
}

// recordLocked saves ops in order and queues each for delivery. It stops at
// the first store failure; operations saved before it stay recorded.
func (s *Service) recordLocked(ops []Operation) error {
	queued := false
	defer func() {
		if queued {
			s.notify()
		}
	}()

	for _, op := range ops {
		ref, err := s.deps.Store.SaveOperation(op)
		if err != nil {
			return fmt.Errorf("saving operation: %w", err)
		}
		if err := s.deps.Outbox.Enqueue(OutboxEntry{Ref: ref, Operation: op}); err != nil {
			s.deps.Logger.Warn("cannot queue operation for delivery", "ref", ref, "error", err)
			continue
		}
		queued = true
	}
	return nil
}

// Wake asks a running flusher to try delivery now, for example after the
// transport reconnects.
func (s *Service) Wake() { s.notify() }

func (s *Service) notify() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// HandleRemote records an operation received from a collaborator. Remote
// operations are saved to the log but not applied to the working tree and
// not queued for delivery.
func (s *Service) HandleRemote(op Operation) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.deps.Store.SaveOperation(op)
	if err != nil {
		return "", fmt.Errorf("saving remote operation: %w", err)
	}
	s.deps.Logger.Info("remote operation recorded", "author", op.Author, "kind", op.Kind, "path", op.Path, "line", op.Line)
	return ref, nil
}

// Flush delivers queued operations through the sink in order until the
// outbox is empty or the sink is offline. Being offline is not an error.
// It returns the number of operations delivered.
func (s *Service) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, nil
		}
		ok, err := s.deps.Outbox.ProcessNext(func(e OutboxEntry) error {
			return s.deps.Sink.Send(ctx, e.Operation)
		})
		if err != nil {
			if errors.Is(err, ErrOffline) || ctx.Err() != nil {
				return sent, nil
			}
			return sent, fmt.Errorf("delivering operation: %w", err)
		}
		if !ok {
			return sent, nil
		}
		sent++
	}
}

// RunFlusher calls Flush whenever operations are queued and every interval,
// until ctx is cancelled.
func (s *Service) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pending:
		case <-ticker.C:
		}
		if n, err := s.Flush(ctx); err != nil {
			s.deps.Logger.Warn("flush failed", "error", err)
		} else if n > 0 {
			s.deps.Logger.Debug("operations delivered", "count", n)
		}
	}
}

// Checkpoint records a checkpoint over the whole log.
func (s *Service) Checkpoint(message string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.deps.Store.CreateCheckpoint(message, s.author)
	if err != nil {
		return nil, fmt.Errorf("creating checkpoint: %w", err)
	}
	return cp, nil
}

// relPath converts an absolute path under the root to a slash-separated
// project-relative path.
func (s *Service) relPath(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", abs, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || len(rel) > 2 && rel[:3] == "../" {
		return "", fmt.Errorf("path %s is outside project root %s", abs, s.root)
	}
	return rel, nil
}
