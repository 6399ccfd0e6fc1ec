package app

import "myvc/internal/database"

// CommandRun tracks a CLI invocation for the command journal. Runs are
// created in memory with ID=0. Only commands that change project state
// persist them (giving them an auto-increment ID from the journal).
type CommandRun struct {
	ID         int64
	Command    string
	Parameters string
	Status     string // database.StatusSuccess or database.StatusError
}

// NewCommandRun creates a new in-memory command run.
func NewCommandRun(command, parameters string) *CommandRun {
	return &CommandRun{
		Command:    command,
		Parameters: parameters,
		Status:     database.StatusSuccess,
	}
}

// Persisted returns true if this run has been saved to the journal.
func (r *CommandRun) Persisted() bool {
	return r.ID != 0
}

// Fail marks the run as failed.
func (r *CommandRun) Fail() {
	r.Status = database.StatusError
}
