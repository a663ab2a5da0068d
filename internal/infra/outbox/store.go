package outbox

import (
	"context"
	"time"
)

// EventDocument is the persisted shape of a pending event.
type EventDocument struct {
	ID         string
	Name       string
	Aggregate  string
	Payload    []byte
	Headers    map[string]string
	OccurredAt time.Time
	ClaimedBy  string
	RetryAt    time.Time
	Attempts   int
	LastError  string
}

// Store hands pending documents to workers one at a time. Claim returns nil
// without error when the queue is drained.
type Store interface {
	Claim(ctx context.Context, workerID string) (*EventDocument, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, retryAt time.Time, reason string) error
}
