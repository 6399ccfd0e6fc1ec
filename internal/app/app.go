package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"myvc/internal/config"
	"myvc/internal/database"
	"myvc/internal/diff"
	"myvc/internal/encryption"
	"myvc/internal/fs"
	"myvc/internal/outbox"
	"myvc/internal/store"
	"myvc/internal/transport"
	"myvc/internal/vault"
	"myvc/internal/vc"
	"myvc/internal/versioning"
	"myvc/internal/watcher"
)

// ErrAlreadyInitialized is returned by InitProject when the metadata
// directory already exists.
var ErrAlreadyInitialized = errors.New("project already initialized")

const (
	// FlushInterval is how often a running watch retries delivery of queued
	// operations when nothing new was recorded.
	FlushInterval = 5 * time.Second

	maxReconnectDelay = 30 * time.Second
	finalFlushTimeout = 2 * time.Second
)

// Options select the project and per-invocation overrides.
type Options struct {
	// Root is the project directory. Empty means the working directory.
	Root string
	// Command and Parameters identify the invocation in the command journal.
	Command    string
	Parameters string
	Verbose    bool
	// Server and Port override the [transport] section. Setting either
	// enables the websocket transport.
	Server string
	Port   int
}

// InitProject creates the metadata directory under root and returns the
// absolute project root.
func InitProject(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	if store.IsInitialized(abs) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyInitialized, abs)
	}
	if err := store.InitDirectory(abs, vc.RealClock{}); err != nil {
		return "", fmt.Errorf("initializing %s: %w", abs, err)
	}
	return abs, nil
}

// Keygen generates the encryption key pair named by cfg, protecting the
// private key with passphrase.
func Keygen(cfg config.EncryptionConfig, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return fmt.Errorf("encryption type is %q, set [encryption] type = \"age\" first", cfg.Type)
	}
	return enc.Setup(passphrase)
}

// App is the application layer between the CLI and the Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and finalizes the command journal on Close.
type App struct {
	cfg   *config.Config
	root  string
	clock vc.Clock

	logger    *slog.Logger
	log       vc.Logger
	logCloser io.Closer

	store     *store.Store
	ignore    *fs.IgnoreMatcher
	fsmgr     *fs.OSFilesystemManager
	outbox    vc.Outbox
	client    *transport.Client
	encryptor vc.Encryptor
	vault     vc.Vault
	db        vc.Database
	service   *vc.Service
	run       *CommandRun
}

// New creates a fully wired App for the initialized project at opts.Root.
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.LogDir, opID, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a = &App{
		cfg:       cfg,
		root:      root,
		clock:     vc.RealClock{},
		logger:    logger,
		log:       &slogAdapter{l: logger},
		logCloser: logCloser,
		run:       NewCommandRun(opts.Command, opts.Parameters),
	}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	storeOpts := []store.Option{store.WithClock(a.clock), store.WithLogger(a.log)}
	if enc != nil && enc.IsConfigured() {
		storeOpts = append(storeOpts, store.WithEncryptor(enc))
	}
	a.store, err = store.Open(root, storeOpts...)
	if err != nil {
		return nil, err
	}

	if err := config.ApplyProject(cfg, filepath.Join(a.store.Dir(), config.ProjectFileName)); err != nil {
		return nil, err
	}

	a.ignore, err = fs.LoadIgnoreMatcher(root, cfg.Watcher.Ignore)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}
	a.fsmgr = fs.NewOSFilesystemManager(a.ignore)

	a.outbox, err = outbox.NewOutboxFromConfig(cfg.Outbox, a.store.OutboxDir())
	if err != nil {
		return nil, fmt.Errorf("creating outbox: %w", err)
	}

	sink, err := a.newSink(opts)
	if err != nil {
		return nil, err
	}

	a.vault, err = vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	a.db, err = database.NewDatabaseFromConfig(cfg.Database, a.clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := a.db.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	differ := diff.New(diff.WithThreshold(cfg.Diff.Threshold), diff.WithClock(a.clock))
	deps := vc.Deps{
		Versioner: versioning.NewManager(a.fsmgr, differ, a.log),
		Store:     a.store,
		Outbox:    a.outbox,
		Sink:      sink,
		Vault:     a.vault,
		Database:  a.db,
		Fsmgr:     a.fsmgr,
		Logger:    a.log,
		Clock:     a.clock,
	}
	if cfg.Diff.Verify {
		deps.Apply = diff.Apply
	}
	a.service = vc.NewService(root, cfg.Author, deps)

	return a, nil
}

func (a *App) newSink(opts Options) (vc.Sink, error) {
	tc := a.cfg.Transport
	if opts.Server != "" {
		tc.Type = "websocket"
		tc.Server = opts.Server
	}
	if opts.Port != 0 {
		tc.Type = "websocket"
		tc.Port = opts.Port
	}

	switch tc.Type {
	case "none", "":
		return transport.OfflineSink{}, nil
	case "websocket":
		server, port := tc.Server, tc.Port
		if server == "" {
			server = config.DefaultServer
		}
		if port == 0 {
			port = config.DefaultPort
		}
		a.client = transport.NewClient(server, port, tc.Path, transport.WithLogger(a.log))
		return a.client, nil
	default:
		return nil, fmt.Errorf("unknown transport type: %q", tc.Type)
	}
}

// Root returns the absolute project root.
func (a *App) Root() string { return a.root }

// persistRun saves the command run to the journal, giving it an
// auto-increment ID. Only commands that change project state call it.
func (a *App) persistRun() error {
	if a.run.Persisted() {
		return nil
	}
	r, err := a.db.CreateCommandRun(a.root, a.run.Command, a.run.Parameters)
	if err != nil {
		return fmt.Errorf("journaling command: %w", err)
	}
	a.run.ID = r.ID
	return nil
}

// Fail marks the current command as failed in the journal.
func (a *App) Fail() { a.run.Fail() }

// Journal records the current command without running anything else.
// Used by init, which has no service operation of its own.
func (a *App) Journal() error { return a.persistRun() }

// Baselines for the initial file set are taken before watcher events flow.
var _ watcher.Seeder = (*vc.Service)(nil)

// Watch tracks every qualifying file under the root and records changes
// until ctx is cancelled. With a websocket transport it keeps a connection
// open, delivers queued operations, and records incoming remote operations.
func (a *App) Watch(ctx context.Context) error {
	if err := a.persistRun(); err != nil {
		return err
	}

	poll := time.Duration(a.cfg.Watcher.PollIntervalMs) * time.Millisecond
	wopts := []watcher.Option{
		watcher.WithPollInterval(poll),
		watcher.WithIgnore(a.ignore),
		watcher.WithExtensions(a.cfg.Watcher.TextExtensions),
		watcher.WithLogger(a.log),
		watcher.WithClock(a.clock),
	}
	if poll > 0 && poll < watcher.DefaultTick {
		wopts = append(wopts, watcher.WithTick(poll))
	}
	if a.cfg.Watcher.ForcePolling {
		wopts = append(wopts, watcher.WithForcePolling())
	}

	w, err := watcher.New(a.root, wopts...)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if w.Degraded() {
		a.log.Warn("kernel notifications unavailable, polling", "interval", poll)
	}
	if err := w.Start(a.service); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.service.RunFlusher(ctx, FlushInterval)
	}()
	if a.client != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runTransport(ctx)
		}()
	}

	<-ctx.Done()
	w.Stop()
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	if n, err := a.service.Flush(flushCtx); err != nil {
		a.log.Warn("final flush failed", "error", err)
	} else if n > 0 {
		a.log.Info("delivered queued operations on shutdown", "count", n)
	}
	return nil
}

// runTransport keeps the websocket connection open until ctx is cancelled,
// reconnecting with exponential backoff.
func (a *App) runTransport(ctx context.Context) {
	delay := time.Second
	for ctx.Err() == nil {
		if err := a.client.Connect(ctx); err != nil {
			a.log.Warn("server unavailable, operations stay queued", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}
		delay = time.Second
		a.service.Wake()

		err := a.client.Receive(ctx, func(op vc.Operation) {
			if _, err := a.service.HandleRemote(op); err != nil {
				a.log.Warn("rejecting remote operation", "author", op.Author, "error", err)
			}
		})
		if err != nil {
			a.log.Warn("connection closed", "error", err)
		}
	}
}

// Status is the report printed by `myvc status`.
type Status struct {
	*vc.StatusReport
	// Transport is the connection state, or "disabled" without a transport.
	Transport string
}

// Status collects the project status. With a websocket transport it probes
// the server once.
func (a *App) Status(ctx context.Context) (*Status, error) {
	report, err := a.service.Status()
	if err != nil {
		return nil, err
	}
	st := &Status{StatusReport: report, Transport: "disabled"}
	if a.client != nil {
		if err := a.client.Connect(ctx); err != nil {
			a.log.Debug("status probe failed", "error", err)
		}
		st.Transport = a.client.State().String()
		a.client.Close()
	}
	return st, nil
}

// Commit records a checkpoint over the whole log.
func (a *App) Commit(message string) (*vc.Checkpoint, error) {
	if err := a.persistRun(); err != nil {
		return nil, err
	}
	return a.service.Checkpoint(message)
}

// Log returns up to limit operations, newest first.
func (a *App) Log(limit int) ([]vc.LogRecord, error) {
	return a.service.Log(limit)
}

// Snapshot stores the full content of the file at rawPath.
func (a *App) Snapshot(rawPath string) (string, error) {
	if err := a.persistRun(); err != nil {
		return "", err
	}
	return a.service.Snapshot(rawPath)
}

// Snapshots lists stored snapshots, oldest first.
func (a *App) Snapshots() ([]vc.SnapshotInfo, error) {
	return a.service.Snapshots()
}

// SnapshotEncrypted reports whether snapshot id needs a passphrase.
func (a *App) SnapshotEncrypted(id string) bool {
	return a.store.SnapshotEncrypted(id)
}

// Unlock decrypts the private key with passphrase so encrypted snapshots
// can be restored.
func (a *App) Unlock(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is not configured")
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	a.store.Unlock(dc)
	return nil
}

// Restore writes snapshot id to outPath, or back to its original file when
// outPath is empty. It returns the path written.
func (a *App) Restore(id, outPath string) (string, error) {
	if err := a.persistRun(); err != nil {
		return "", err
	}
	return a.service.Restore(id, outPath)
}

// History returns the most recent journaled commands.
func (a *App) History(limit int) ([]*vc.CommandRun, error) {
	return a.service.History(limit)
}

// ProjectID names the project in the vault: [vault] project, or the base
// name of the project root.
func (a *App) ProjectID() string {
	if a.cfg.Vault.Project != "" {
		return a.cfg.Vault.Project
	}
	return filepath.Base(a.root)
}

// Push uploads checkpoints and the operation log to the configured vault.
func (a *App) Push() (*vc.PushResult, error) {
	if err := a.persistRun(); err != nil {
		return nil, err
	}
	if err := a.vault.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("vault %s not usable: %w", a.vault.Name(), err)
	}
	return a.service.Push(a.ProjectID())
}

// VaultName returns the configured vault's name.
func (a *App) VaultName() string { return a.vault.Name() }

// Close finalizes the command journal entry and closes all resources.
func (a *App) Close() error {
	var firstErr error
	if a.run.Persisted() {
		if err := a.db.FinishCommandRun(a.run.ID, a.run.Status); err != nil {
			firstErr = fmt.Errorf("finishing command run: %w", err)
		}
	}
	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) closeResources() error {
	var firstErr error
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			firstErr = fmt.Errorf("closing transport: %w", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return firstErr
}
