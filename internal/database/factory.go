package database

import (
	"fmt"
	"os"
	"path/filepath"

	"myvc/internal/config"
	"myvc/internal/vc"
)

// FileName is the journal file created inside DataDir.
const FileName = "myvc.db"

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock vc.Clock) (vc.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		return open(filepath.Join(cfg.DataDir, FileName), clock)
	case "memory":
		return open(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func open(path string, clock vc.Clock) (vc.Database, error) {
	db, err := NewSQLiteDatabase(path, clock)
	if err != nil {
		return nil, err
	}
	return db, nil
}
