// Package store persists operations, snapshots, and checkpoints under the
// project's .myvc directory.
//
// Layout:
//
//	<root>/.myvc/
//	  index                                  {version, created, last_operation_id}
//	  log.json                               [{timestamp, type, author, file}, ...]
//	  ops/{timestamp}_{author}.json          one operation record
//	  versions/{timestamp}_{flatpath}.snapshot
//	  versions/checkpoint_{timestamp}.json
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	vcfs "myvc/internal/fs"
	"myvc/internal/vc"
)

// DirName is the metadata directory created under a project root.
const DirName = ".myvc"

// IndexVersion is written to new index files.
const IndexVersion = 1

const (
	indexFile   = "index"
	logFile     = "log.json"
	opsDir      = "ops"
	versionsDir = "versions"
	outboxDir   = "outbox"
)

var (
	// ErrNotInitialized is returned by Open when the metadata directory is missing.
	ErrNotInitialized = errors.New("not a myvc project (no .myvc directory)")
	// ErrNotFound is returned when a snapshot or checkpoint does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrWrite wraps failures to persist a record.
	ErrWrite = errors.New("write failed")
	// ErrEncrypted is returned when loading an encrypted snapshot without a
	// decryption context.
	ErrEncrypted = errors.New("snapshot is encrypted")
)

// Option configures a Store.
type Option func(*Store)

func WithClock(c vc.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l vc.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithIDGenerator(g vc.IDGenerator) Option {
	return func(s *Store) { s.idgen = g }
}

// WithEncryptor encrypts snapshots at rest. A nil encryptor stores plaintext.
func WithEncryptor(e vc.Encryptor) Option {
	return func(s *Store) { s.encryptor = e }
}

// Store reads and writes the metadata directory of one project.
// log.json and index are rewritten read-modify-write while holding mu, so
// every writer in the process is serialized.
type Store struct {
	root string
	dir  string

	mu        sync.Mutex
	clock     vc.Clock
	logger    vc.Logger
	idgen     vc.IDGenerator
	encryptor vc.Encryptor
	decryptor vc.DecryptionContext
}

// InitDirectory creates the metadata tree under projectRoot. Existing files
// are never overwritten, so calling it again is harmless.
func InitDirectory(projectRoot string, clock vc.Clock) error {
	dir := filepath.Join(projectRoot, DirName)
	for _, sub := range []string{opsDir, versionsDir, outboxDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	if err := writeIfMissing(filepath.Join(dir, indexFile), func() ([]byte, error) {
		return json.MarshalIndent(vc.Index{
			Version: IndexVersion,
			Created: clock.Now().UnixNano(),
		}, "", "  ")
	}); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	if err := writeIfMissing(filepath.Join(dir, logFile), func() ([]byte, error) {
		return []byte("[]\n"), nil
	}); err != nil {
		return fmt.Errorf("creating log: %w", err)
	}
	return nil
}

// IsInitialized reports whether projectRoot has a metadata directory.
func IsInitialized(projectRoot string) bool {
	info, err := os.Stat(filepath.Join(projectRoot, DirName))
	return err == nil && info.IsDir()
}

func writeIfMissing(path string, content func() ([]byte, error)) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	data, err := content()
	if err != nil {
		return err
	}
	return vcfs.WriteFileAtomic(path, data, 0644)
}

// Open returns a Store for an initialized project.
func Open(projectRoot string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	if !IsInitialized(abs) {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, abs)
	}

	s := &Store{
		root:   abs,
		dir:    filepath.Join(abs, DirName),
		clock:  vc.RealClock{},
		logger: vc.NewNopLogger(),
		idgen:  vc.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute project root.
func (s *Store) Root() string { return s.root }

// Dir returns the absolute metadata directory.
func (s *Store) Dir() string { return s.dir }

// OutboxDir returns the directory reserved for the delivery queue.
func (s *Store) OutboxDir() string { return filepath.Join(s.dir, outboxDir) }

// Unlock supplies the decryption context used by LoadSnapshot for
// encrypted snapshots.
func (s *Store) Unlock(dc vc.DecryptionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decryptor = dc
}

func (s *Store) readJSON(rel string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, rel))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	return writeFile(filepath.Join(s.dir, filepath.FromSlash(rel)), append(data, '\n'), rel)
}

func writeFile(abs string, data []byte, rel string) error {
	if err := vcfs.WriteFileAtomic(abs, data, 0644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, rel, err)
	}
	return nil
}

// uniqueName returns base+ext under dir, adding _1, _2, ... until the name
// is unused.
func (s *Store) uniqueName(dir, base, ext string) string {
	name := base + ext
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(s.dir, dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

// Index returns the current index record.
func (s *Store) Index() (*vc.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndexLocked()
}

func (s *Store) readIndexLocked() (*vc.Index, error) {
	var idx vc.Index
	if err := s.readJSON(indexFile, &idx); err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return &idx, nil
}

var _ vc.OperationStore = (*Store)(nil)
