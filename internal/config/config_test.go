package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		Author:  "alice",
		BaseDir: "/home/user/.local/share/myvc",
		LogDir:  "/home/user/.local/share/myvc/log",
		Watcher: WatcherConfig{
			PollIntervalMs: 250,
			Ignore:         []string{"*.log", "build/**"},
			TextExtensions: []string{".tf"},
			ForcePolling:   true,
		},
		Diff:      DiffConfig{Threshold: 500},
		Transport: TransportConfig{Type: "websocket", Server: "collab.example", Port: 9000, Path: "/ops"},
		Outbox:    OutboxConfig{Type: "memory"},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/myvc/keys/myvc.pub",
			PrivateKeyPath: "/home/user/.local/share/myvc/keys/myvc.key",
		},
		Vault:    VaultConfig{Type: "s3", Name: "remote", S3Bucket: "bucket", S3Endpoint: "http://localhost:9000"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/myvc/db"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Author != original.Author {
		t.Errorf("Author = %q, want %q", got.Author, original.Author)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Watcher.PollIntervalMs != 250 || !got.Watcher.ForcePolling {
		t.Errorf("Watcher = %+v, want poll 250 and forced polling", got.Watcher)
	}
	if len(got.Watcher.Ignore) != 2 {
		t.Fatalf("len(Watcher.Ignore) = %d, want 2", len(got.Watcher.Ignore))
	}
	if got.Diff.Threshold != 500 {
		t.Errorf("Diff.Threshold = %d, want 500", got.Diff.Threshold)
	}
	if got.Transport != original.Transport {
		t.Errorf("Transport = %+v, want %+v", got.Transport, original.Transport)
	}
	if got.Outbox.Type != "memory" {
		t.Errorf("Outbox.Type = %q, want %q", got.Outbox.Type, "memory")
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Vault != original.Vault {
		t.Errorf("Vault = %+v, want %+v", got.Vault, original.Vault)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("bob", "/data/myvc")

	if cfg.Author != "bob" {
		t.Errorf("Author = %q, want %q", cfg.Author, "bob")
	}
	if cfg.LogDir != "/data/myvc/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/myvc/log")
	}
	if cfg.Encryption.PublicKeyPath != "/data/myvc/keys/myvc.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if cfg.Encryption.Type != "none" {
		t.Errorf("Encryption.Type = %q, want %q", cfg.Encryption.Type, "none")
	}
	if cfg.Transport.Server != DefaultServer || cfg.Transport.Port != DefaultPort {
		t.Errorf("Transport = %+v, want %s:%d", cfg.Transport, DefaultServer, DefaultPort)
	}
	if cfg.Diff.Threshold != DefaultDiffThreshold {
		t.Errorf("Diff.Threshold = %d, want %d", cfg.Diff.Threshold, DefaultDiffThreshold)
	}
	if cfg.Vault.FSVaultRoot != "/data/myvc/vault" {
		t.Errorf("Vault.FSVaultRoot = %q", cfg.Vault.FSVaultRoot)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "myvc.toml")
		cfg := NewConfig("a", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "myvc.toml")
		cfg := NewConfig("a", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "myvc.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Author != "read-test" {
			t.Errorf("Author = %q, want %q", got.Author, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/myvc.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}

func TestReadOrDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := ReadOrDefault(filepath.Join(dir, "missing.toml"), "carol", dir)
	if err != nil {
		t.Fatalf("ReadOrDefault() error = %v", err)
	}
	if cfg.Author != "carol" || cfg.BaseDir != dir {
		t.Errorf("ReadOrDefault() = %+v, want defaults for carol", cfg)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("author = ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadOrDefault(bad, "carol", dir); err == nil {
		t.Error("ReadOrDefault() with malformed file expected error")
	}
}

func TestApplyProject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectFileName)

	t.Run("missing file keeps config", func(t *testing.T) {
		cfg := NewConfig("a", dir)
		if err := ApplyProject(cfg, path); err != nil {
			t.Fatalf("ApplyProject() error = %v", err)
		}
		if cfg.Diff.Threshold != DefaultDiffThreshold {
			t.Errorf("Diff.Threshold = %d, want %d", cfg.Diff.Threshold, DefaultDiffThreshold)
		}
	})

	t.Run("overlays defined keys only", func(t *testing.T) {
		content := "[watcher]\npoll_interval_ms = 0\nignore = [\"vendor/**\"]\n\n[diff]\nthreshold = 50\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		cfg := NewConfig("a", dir)
		cfg.Watcher.Ignore = []string{"*.tmp"}
		cfg.Watcher.ForcePolling = true
		if err := ApplyProject(cfg, path); err != nil {
			t.Fatalf("ApplyProject() error = %v", err)
		}
		if cfg.Watcher.PollIntervalMs != 0 {
			t.Errorf("PollIntervalMs = %d, want 0", cfg.Watcher.PollIntervalMs)
		}
		if len(cfg.Watcher.Ignore) != 2 || cfg.Watcher.Ignore[1] != "vendor/**" {
			t.Errorf("Ignore = %v, want [*.tmp vendor/**]", cfg.Watcher.Ignore)
		}
		if !cfg.Watcher.ForcePolling {
			t.Error("ForcePolling overwritten by a key the project file does not define")
		}
		if cfg.Diff.Threshold != 50 {
			t.Errorf("Diff.Threshold = %d, want 50", cfg.Diff.Threshold)
		}
	})
}
