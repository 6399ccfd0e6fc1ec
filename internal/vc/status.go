package vc

import "fmt"

// StatusReport summarizes the state of a project.
type StatusReport struct {
	Root           string
	Tracked        []string
	Operations     int64 // index last_operation_id
	LogEntries     int
	Snapshots      int
	Checkpoints    int
	LastCheckpoint *Checkpoint
	Pending        int // operations not yet delivered
}

// Status collects a StatusReport from the store, the outbox, and the
// versioning manager.
func (s *Service) Status() (*StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.deps.Store.Index()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	entries, err := s.deps.Store.LoadLog()
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	snaps, err := s.deps.Store.ListSnapshots()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	cps, err := s.deps.Store.ListCheckpoints()
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	pending, err := s.deps.Outbox.Count()
	if err != nil {
		return nil, fmt.Errorf("counting outbox: %w", err)
	}

	report := &StatusReport{
		Root:        s.root,
		Tracked:     s.deps.Versioner.Tracked(),
		Operations:  idx.LastOperationID,
		LogEntries:  len(entries),
		Snapshots:   len(snaps),
		Checkpoints: len(cps),
		Pending:     pending,
	}
	if len(cps) > 0 {
		report.LastCheckpoint = cps[len(cps)-1]
	}
	return report, nil
}
