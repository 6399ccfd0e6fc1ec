package vc

import (
	"database/sql"
	"time"
)

// CommandRun is one journaled CLI invocation.
type CommandRun struct {
	ID         int64
	Project    string
	Command    string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Database is the command journal backing `myvc history`.
type Database interface {
	// CreateCommandRun records the start of a command run against the
	// project rooted at project and returns it with its ID.
	CreateCommandRun(project, command, parameters string) (*CommandRun, error)

	// FinishCommandRun sets the final status and finish time of a run.
	FinishCommandRun(id int64, status string) error

	// ListCommandRuns returns the most recent runs, newest first.
	ListCommandRuns(limit int) ([]*CommandRun, error)

	// CheckMigrations returns an error if the schema is not at the latest version.
	CheckMigrations() error

	Close() error
}
