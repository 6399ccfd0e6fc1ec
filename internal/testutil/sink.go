package testutil

import (
	"context"
	"sync"

	"myvc/internal/vc"
)

// RecordingSink records every operation it is sent. When Offline is set it
// rejects sends with vc.ErrOffline.
type RecordingSink struct {
	mu      sync.Mutex
	sent    []vc.Operation
	Offline bool
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Send(_ context.Context, op vc.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Offline {
		return vc.ErrOffline
	}
	s.sent = append(s.sent, op)
	return nil
}

// SetOffline toggles whether sends fail.
func (s *RecordingSink) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Offline = offline
}

// Sent returns a copy of the operations delivered so far.
func (s *RecordingSink) Sent() []vc.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vc.Operation(nil), s.sent...)
}

var _ vc.Sink = (*RecordingSink)(nil)
