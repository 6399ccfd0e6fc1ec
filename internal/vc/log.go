package vc

import "fmt"

// LogRecord is a log entry together with the operation it references.
type LogRecord struct {
	Entry     LogEntry
	Operation Operation
}

// Log returns up to limit recorded operations, newest first. A limit of zero
// or less returns all of them. Entries whose record cannot be loaded are
// logged and skipped.
func (s *Service) Log(limit int) ([]LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.deps.Store.LoadLog()
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}

	var records []LogRecord
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(records) == limit {
			break
		}
		op, err := s.deps.Store.LoadOperation(entries[i].File)
		if err != nil {
			s.deps.Logger.Warn("skipping log entry", "file", entries[i].File, "error", err)
			continue
		}
		records = append(records, LogRecord{Entry: entries[i], Operation: op})
	}
	return records, nil
}
