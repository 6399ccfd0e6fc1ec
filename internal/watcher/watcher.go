// Package watcher keeps a table of the text files under a project root and
// reports creations, modifications, and deletions to a Handler.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"myvc/internal/vc"
)

var (
	// ErrInit is returned by New when the root is not a usable directory.
	ErrInit = errors.New("watcher init failed")
	// ErrStart is returned by Start.
	ErrStart = errors.New("watcher start failed")
)

// DefaultTick bounds how long the loop waits for a notification before it
// checks for a stop signal.
const DefaultTick = time.Second

// WatchedFile is one entry of the watch table.
type WatchedFile struct {
	Path        string
	ModTime     time.Time
	Size        int64
	Fingerprint string
}

func fingerprint(size int64, mtime time.Time) string {
	return fmt.Sprintf("%d_%d", size, mtime.UnixNano())
}

// Handler receives change events. OnChange is called with the watcher's
// lock held and must not call back into the Watcher.
type Handler interface {
	OnChange(ev vc.FileEvent)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev vc.FileEvent)

func (f HandlerFunc) OnChange(ev vc.FileEvent) { f(ev) }

// Seeder is implemented by handlers that take the initial file set. Start
// calls Track with the scanned paths before any event is delivered.
type Seeder interface {
	Track(paths []string) int
}

// Ignorer decides which root-relative paths are excluded from watching.
type Ignorer interface {
	Match(rel string) bool
	MatchDir(rel string) bool
}

type noIgnore struct{}

func (noIgnore) Match(string) bool    { return false }
func (noIgnore) MatchDir(string) bool { return false }

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval makes the loop poll and rescan every d while the watcher
// runs without kernel notifications. Zero disables automatic polling.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithTick sets the loop's wait timeout.
func WithTick(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.tick = d
		}
	}
}

// WithIgnore sets the ignore matcher.
func WithIgnore(ig Ignorer) Option {
	return func(w *Watcher) {
		if ig != nil {
			w.ignore = ig
		}
	}
}

// WithExtensions adds extensions (with leading dot) to the text allow-list.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) {
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			w.extra[e] = true
		}
	}
}

// WithForcePolling selects the polling backend even when kernel
// notifications are available.
func WithForcePolling() Option {
	return func(w *Watcher) { w.forcePolling = true }
}

func WithLogger(l vc.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

func WithClock(c vc.Clock) Option {
	return func(w *Watcher) { w.clock = c }
}

// Watcher monitors a directory tree. All table access goes through mu.
type Watcher struct {
	root string

	mu      sync.Mutex
	files   map[string]*WatchedFile
	skipped int
	handler Handler

	backend  backend
	degraded bool

	ignore       Ignorer
	extra        map[string]bool
	forcePolling bool
	tick         time.Duration
	pollInterval time.Duration
	logger       vc.Logger
	clock        vc.Clock

	done     chan struct{}
	wg       sync.WaitGroup
	running  bool
	stopped  bool
	stopOnce sync.Once
}

// New creates a Watcher for root. If kernel notifications cannot be set up,
// the watcher falls back to scan-only mode and Degraded reports true.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", ErrInit, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrInit, abs)
	}

	w := &Watcher{
		root:   abs,
		files:  make(map[string]*WatchedFile),
		ignore: noIgnore{},
		extra:  make(map[string]bool),
		tick:   DefaultTick,
		logger: vc.NewNopLogger(),
		clock:  vc.RealClock{},
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.forcePolling {
		w.backend = pollBackend{}
		w.degraded = true
		return w, nil
	}

	nb, err := newNotifyBackend()
	if err != nil {
		w.logger.Warn("kernel notifications unavailable, using scan-only mode", "error", err)
		w.backend = pollBackend{}
		w.degraded = true
		return w, nil
	}
	if err := nb.add(abs); err != nil {
		w.logger.Warn("cannot watch root, using scan-only mode", "root", abs, "error", err)
		nb.close()
		w.backend = pollBackend{}
		w.degraded = true
		return w, nil
	}
	w.backend = nb
	return w, nil
}

// Root returns the absolute root directory.
func (w *Watcher) Root() string { return w.root }

// Degraded reports whether the watcher runs without kernel notifications.
func (w *Watcher) Degraded() bool { return w.degraded }

// Backend returns the name of the active backend ("notify" or "poll").
func (w *Watcher) Backend() string { return w.backend.name() }

// SkippedEntries returns how many unreadable entries scans have skipped.
func (w *Watcher) SkippedEntries() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skipped
}

// Start scans the tree, registers directories for notification, and
// starts the background loop. The initial scan does not emit events; if h
// is a Seeder it receives the scanned paths before the loop starts.
func (w *Watcher) Start(h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrStart)
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("%w: watcher stopped", ErrStart)
	}
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("%w: already running", ErrStart)
	}
	w.handler = h
	w.scanLocked(w.root, false)
	w.running = true
	paths := w.sortedPathsLocked()
	w.mu.Unlock()

	if s, ok := h.(Seeder); ok {
		s.Track(paths)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.wg.Add(1)
	go w.loop()

	w.logger.Info("watcher started", "root", w.root, "backend", w.backend.name(), "files", len(paths))
	return nil
}

// Stop signals the loop, waits for it to exit, and releases the backend.
// It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()

		close(w.done)
		w.wg.Wait()
		if err := w.backend.close(); err != nil {
			w.logger.Warn("closing watcher backend", "error", err)
		}
		w.logger.Info("watcher stopped", "root", w.root)
	})
}

// Files returns a point-in-time copy of the watch table sorted by path.
func (w *Watcher) Files() []WatchedFile {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]WatchedFile, 0, len(w.files))
	for _, f := range w.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// PollChanges re-stats every watched file. Files that can no longer be
// stat'ed are removed and reported as deleted; files whose fingerprint
// changed are reported as modified. It returns the number of changes.
func (w *Watcher) PollChanges() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	count := 0
	for _, path := range w.sortedPathsLocked() {
		f := w.files[path]
		info, err := os.Stat(path)
		if err != nil {
			delete(w.files, path)
			w.emitLocked(path, vc.Deleted, vc.SourcePoll)
			count++
			continue
		}
		if info.ModTime().Equal(f.ModTime) && info.Size() == f.Size {
			continue
		}
		fp := fingerprint(info.Size(), info.ModTime())
		f.ModTime = info.ModTime()
		f.Size = info.Size()
		if fp != f.Fingerprint {
			f.Fingerprint = fp
			w.emitLocked(path, vc.Modified, vc.SourcePoll)
			count++
		}
	}
	return count
}

// Rescan walks the tree and reports qualifying files missing from the
// table as created. It returns the number of new files.
func (w *Watcher) Rescan() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scanLocked(w.root, true)
}

func (w *Watcher) sortedPathsLocked() []string {
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return rel
}

// scanLocked walks dir depth-first, registering directories with the
// backend and adding qualifying files. With emit set, new files are
// reported as created. Unreadable entries are skipped and counted.
func (w *Watcher) scanLocked(dir string, emit bool) int {
	added := 0
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.skipped++
			w.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		rel := w.rel(path)
		if d.IsDir() {
			if path != w.root && (skipName(d.Name()) || w.ignore.MatchDir(rel)) {
				return filepath.SkipDir
			}
			if err := w.backend.add(path); err != nil {
				w.skipped++
				w.logger.Debug("cannot watch directory", "path", path, "error", err)
			}
			return nil
		}

		if !d.Type().IsRegular() || skipName(d.Name()) || !isTextName(d.Name(), w.extra) || w.ignore.Match(rel) {
			return nil
		}
		if _, ok := w.files[path]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			w.skipped++
			return nil
		}
		w.files[path] = &WatchedFile{
			Path:        path,
			ModTime:     info.ModTime(),
			Size:        info.Size(),
			Fingerprint: fingerprint(info.Size(), info.ModTime()),
		}
		added++
		if emit {
			w.emitLocked(path, vc.Created, vc.SourcePoll)
		}
		return nil
	})
	return added
}

// qualifies reports whether a root-relative file path belongs in the table.
func (w *Watcher) qualifies(path string) bool {
	rel := w.rel(path)
	if strings.HasPrefix(rel, "..") {
		return false
	}
	return inScope(rel) && isTextName(filepath.Base(path), w.extra) && !w.ignore.Match(rel)
}

func (w *Watcher) emitLocked(path string, kind vc.ChangeKind, source vc.EventSource) {
	if w.handler == nil {
		return
	}
	w.handler.OnChange(vc.FileEvent{
		Path:   path,
		Kind:   kind,
		Source: source,
		Time:   w.clock.Now(),
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	lastPoll := w.clock.Now()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.backend.events():
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.backend.errors():
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-ticker.C:
			if !w.degraded || w.pollInterval <= 0 {
				continue
			}
			if now := w.clock.Now(); now.Sub(lastPoll) >= w.pollInterval {
				lastPoll = now
				w.PollChanges()
				w.Rescan()
			}
		}
	}
}

// handleRaw classifies one fsnotify event. Table mutation and handler
// invocation happen under one critical section.
func (w *Watcher) handleRaw(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := ev.Name
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			rel := w.rel(path)
			if inScope(rel) && !w.ignore.MatchDir(rel) {
				w.scanLocked(path, true)
			}
			return
		}
		w.refreshLocked(path, info)
	case ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		w.refreshLocked(path, info)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.removeLocked(path)
	}
}

// refreshLocked adds an untracked qualifying file as created, or reports a
// tracked file as modified when its fingerprint changed.
func (w *Watcher) refreshLocked(path string, info fs.FileInfo) {
	if !info.Mode().IsRegular() {
		return
	}
	fp := fingerprint(info.Size(), info.ModTime())
	f, ok := w.files[path]
	if !ok {
		if !w.qualifies(path) {
			return
		}
		w.files[path] = &WatchedFile{Path: path, ModTime: info.ModTime(), Size: info.Size(), Fingerprint: fp}
		w.emitLocked(path, vc.Created, vc.SourceNotify)
		return
	}
	f.ModTime = info.ModTime()
	f.Size = info.Size()
	if fp != f.Fingerprint {
		f.Fingerprint = fp
		w.emitLocked(path, vc.Modified, vc.SourceNotify)
	}
}

// removeLocked drops path, or every file below it when it was a directory.
func (w *Watcher) removeLocked(path string) {
	if _, ok := w.files[path]; ok {
		delete(w.files, path)
		w.emitLocked(path, vc.Deleted, vc.SourceNotify)
		return
	}
	prefix := path + string(filepath.Separator)
	for _, p := range w.sortedPathsLocked() {
		if strings.HasPrefix(p, prefix) {
			delete(w.files, p)
			w.emitLocked(p, vc.Deleted, vc.SourceNotify)
		}
	}
	w.backend.remove(path)
}
