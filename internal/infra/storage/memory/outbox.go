package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "staybook/internal/app/outbox"
	infraoutbox "staybook/internal/infra/outbox"
)

// Outbox queues event records in memory until the worker drains them.
type Outbox struct {
	mu      sync.Mutex
	pending []infraoutbox.EventDocument
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, infraoutbox.EventDocument{
		ID:         record.ID,
		Name:       record.Name,
		Aggregate:  record.Aggregate,
		Payload:    record.Payload,
		Headers:    record.Headers,
		OccurredAt: record.OccurredAt,
	})
	return nil
}

// Claim hands the oldest unclaimed document to a worker.
func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	for i := range o.pending {
		doc := &o.pending[i]
		if doc.ClaimedBy != "" || doc.RetryAt.After(now) {
			continue
		}
		doc.ClaimedBy = workerID
		copied := *doc
		return &copied, nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.pending {
		if o.pending[i].ID == id {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, retryAt time.Time, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.pending {
		if o.pending[i].ID == id {
			o.pending[i].ClaimedBy = ""
			o.pending[i].RetryAt = retryAt
			o.pending[i].Attempts++
			o.pending[i].LastError = reason
			return nil
		}
	}
	return nil
}

// Pending reports the queue depth; used by tests and readiness probes.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
var _ infraoutbox.Store = (*Outbox)(nil)
