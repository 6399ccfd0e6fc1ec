package vc

import "time"

// LogEntry is one line of the operation log (log.json).
// File is the record path relative to the metadata directory.
type LogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"type"`
	Author    string `json:"author"`
	File      string `json:"file"`
}

// Time converts the Unix-nanosecond timestamp.
func (e LogEntry) Time() time.Time { return time.Unix(0, e.Timestamp) }

// Checkpoint is a named marker referencing every operation record listed in
// the log at the moment it was created.
type Checkpoint struct {
	ID         string   `json:"id"`
	Timestamp  int64    `json:"timestamp"`
	Message    string   `json:"message"`
	Author     string   `json:"author"`
	Operations []string `json:"operations"`
}

func (c Checkpoint) Time() time.Time { return time.Unix(0, c.Timestamp) }

// SnapshotInfo describes a stored full-content snapshot.
type SnapshotInfo struct {
	ID        string
	Path      string // project-relative path of the captured file
	Timestamp int64
	Size      int64
	Encrypted bool
}

// Index is the metadata directory's index file.
type Index struct {
	Version         int   `json:"version"`
	Created         int64 `json:"created"`
	LastOperationID int64 `json:"last_operation_id"`
}

// Versioner tracks file baselines and turns file changes into operations.
type Versioner interface {
	AddFile(path string) error
	RemoveFile(path string) error
	DetectChanges(path string, author string) ([]Operation, error)
	Baseline(path string) ([]byte, bool)
	IsTracked(path string) bool
	Tracked() []string
}

// OperationStore persists operations, snapshots, and checkpoints.
type OperationStore interface {
	SaveOperation(op Operation) (string, error)
	SaveSnapshot(path string, content []byte) (string, error)
	LoadOperations() ([]Operation, error)
	LoadOperation(ref string) (Operation, error)
	LoadSnapshot(id string) ([]byte, error)
	ListSnapshots() ([]SnapshotInfo, error)
	CreateCheckpoint(message, author string) (*Checkpoint, error)
	ListCheckpoints() ([]*Checkpoint, error)
	LoadLog() ([]LogEntry, error)
	Index() (*Index, error)
}
