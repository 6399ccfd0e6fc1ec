package database

import (
	"context"
	"database/sql"
	"fmt"

	"myvc/internal/database/migrations"
	"myvc/internal/vc"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Run statuses written by the app layer.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// SQLiteDatabase implements vc.Database using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock vc.Clock
}

// NewSQLiteDatabase opens the database at path, applies pending migrations,
// and returns it. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string, clock vc.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	s := NewSQLiteDatabaseFromDB(db, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for the schema. A nil clock uses the real clock.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock vc.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = vc.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock}
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return db, nil
}

func (s *SQLiteDatabase) CreateCommandRun(project, command, parameters string) (*vc.CommandRun, error) {
	started := s.clock.Now()
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO command_runs (project, command, parameters, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		project, command, parameters, StatusRunning, started)
	if err != nil {
		return nil, fmt.Errorf("creating command run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating command run: %w", err)
	}
	return &vc.CommandRun{
		ID:         id,
		Project:    project,
		Command:    command,
		Parameters: parameters,
		Status:     StatusRunning,
		StartedAt:  started,
	}, nil
}

func (s *SQLiteDatabase) FinishCommandRun(id int64, status string) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE command_runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("finishing command run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing command run: no run with id %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListCommandRuns(limit int) ([]*vc.CommandRun, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, project, command, parameters, status, started_at, finished_at
		   FROM command_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing command runs: %w", err)
	}
	defer rows.Close()

	var runs []*vc.CommandRun
	for rows.Next() {
		var r vc.CommandRun
		if err := rows.Scan(&r.ID, &r.Project, &r.Command, &r.Parameters, &r.Status, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning command run: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing command runs: %w", err)
	}
	return runs, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ vc.Database = (*SQLiteDatabase)(nil)
