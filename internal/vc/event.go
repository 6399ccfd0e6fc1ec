package vc

import "time"

// ChangeKind classifies a change the watcher observed.
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// EventSource tells whether an event came from kernel notifications or a poll.
type EventSource int

const (
	SourceNotify EventSource = iota
	SourcePoll
)

func (s EventSource) String() string {
	if s == SourcePoll {
		return "poll"
	}
	return "notify"
}

// FileEvent is delivered to a change handler for every qualifying change.
// Path is absolute.
type FileEvent struct {
	Path   string
	Kind   ChangeKind
	Source EventSource
	Time   time.Time
}
