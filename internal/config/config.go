package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults applied by NewConfig.
const (
	DefaultServer         = "localhost"
	DefaultPort           = 8080
	DefaultPath           = "/"
	DefaultPollIntervalMs = 1000
	DefaultDiffThreshold  = 1000
)

// ProjectFileName is the per-project override file inside the metadata directory.
const ProjectFileName = "config.toml"

// Config represents the main configuration for myvc.
type Config struct {
	Author     string           `toml:"author"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Watcher    WatcherConfig    `toml:"watcher"`
	Diff       DiffConfig       `toml:"diff"`
	Transport  TransportConfig  `toml:"transport"`
	Outbox     OutboxConfig     `toml:"outbox"`
	Encryption EncryptionConfig `toml:"encryption"`
	Vault      VaultConfig      `toml:"vault"`
	Database   DatabaseConfig   `toml:"database"`
}

// WatcherConfig controls the file watcher.
type WatcherConfig struct {
	// PollIntervalMs enables periodic rescans when kernel notifications are
	// unavailable. Zero disables polling.
	PollIntervalMs int      `toml:"poll_interval_ms"`
	Ignore         []string `toml:"ignore"`
	TextExtensions []string `toml:"text_extensions"`
	ForcePolling   bool     `toml:"force_polling"`
}

// DiffConfig controls the diff engine.
type DiffConfig struct {
	// Threshold is the line count above which the approximate diff is used.
	Threshold int `toml:"threshold"`
	// Verify replays every detected change against the previous content
	// and logs an error when the result differs from the file.
	Verify bool `toml:"verify"`
}

// TransportConfig represents configuration for the collaboration transport.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type TransportConfig struct {
	Type   string `toml:"type"` // "websocket" or "none"
	Server string `toml:"server,omitempty"`
	Port   int    `toml:"port,omitempty"`
	Path   string `toml:"path,omitempty"`
}

// OutboxConfig represents configuration for the queue of undelivered operations.
type OutboxConfig struct {
	Type string `toml:"type"` // "memory" or "filesystem"
}

// EncryptionConfig holds paths to the age key pair used for snapshot encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for the remote checkpoint archive.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type    string `toml:"type"` // "memory", "s3", or "filesystem"
	Name    string `toml:"name"`
	Project string `toml:"project,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials for S3-compatible endpoints. When empty the default
	// AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the command journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else.
func NewConfig(author, baseDir string) *Config {
	return &Config{
		Author:  author,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Watcher: WatcherConfig{PollIntervalMs: DefaultPollIntervalMs},
		Diff:    DiffConfig{Threshold: DefaultDiffThreshold},
		Transport: TransportConfig{
			Type:   "none",
			Server: DefaultServer,
			Port:   DefaultPort,
			Path:   DefaultPath,
		},
		Outbox: OutboxConfig{Type: "filesystem"},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "myvc.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "myvc.key"),
		},
		Vault: VaultConfig{
			Type:        "filesystem",
			Name:        "local",
			FSVaultRoot: filepath.Join(baseDir, "vault"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// ReadOrDefault reads the config at path, falling back to defaults when the
// file does not exist.
func ReadOrDefault(path, author, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfig(author, baseDir), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// projectOverlay is the subset of Config a project may override.
type projectOverlay struct {
	Watcher WatcherConfig `toml:"watcher"`
	Diff    DiffConfig    `toml:"diff"`
}

// ApplyProject overlays the [watcher] and [diff] keys defined in a project's
// config file onto cfg. Keys absent from the file keep their current value.
// A missing file is not an error.
func ApplyProject(cfg *Config, path string) error {
	var overlay projectOverlay
	md, err := toml.DecodeFile(path, &overlay)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading project config %s: %w", path, err)
	}

	if md.IsDefined("watcher", "poll_interval_ms") {
		cfg.Watcher.PollIntervalMs = overlay.Watcher.PollIntervalMs
	}
	if md.IsDefined("watcher", "ignore") {
		cfg.Watcher.Ignore = append(cfg.Watcher.Ignore, overlay.Watcher.Ignore...)
	}
	if md.IsDefined("watcher", "text_extensions") {
		cfg.Watcher.TextExtensions = append(cfg.Watcher.TextExtensions, overlay.Watcher.TextExtensions...)
	}
	if md.IsDefined("watcher", "force_polling") {
		cfg.Watcher.ForcePolling = overlay.Watcher.ForcePolling
	}
	if md.IsDefined("diff", "threshold") {
		cfg.Diff.Threshold = overlay.Diff.Threshold
	}
	if md.IsDefined("diff", "verify") {
		cfg.Diff.Verify = overlay.Diff.Verify
	}
	return nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
