package transport

import (
	"context"

	"myvc/internal/vc"
)

// OfflineSink rejects every send. It is used when no transport is configured,
// so recorded operations stay in the outbox.
type OfflineSink struct{}

var _ vc.Sink = OfflineSink{}

func (OfflineSink) Send(context.Context, vc.Operation) error { return vc.ErrOffline }
