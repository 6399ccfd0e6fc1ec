package vc

import "fmt"

// History returns the most recent command runs, ordered newest first.
func (s *Service) History(limit int) ([]*CommandRun, error) {
	if s.deps.Database == nil {
		return nil, fmt.Errorf("command journal: %w", ErrUnavailable)
	}
	runs, err := s.deps.Database.ListCommandRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing command runs: %w", err)
	}
	return runs, nil
}
