package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"staybook/internal/domain/shared/events"
)

// EventRecord is the serialized form of a domain event awaiting publication.
type EventRecord struct {
	ID         string
	Name       string
	Aggregate  string
	Payload    []byte
	Headers    map[string]string
	OccurredAt time.Time
}

// Outbox accepts event records inside the caller's transaction boundary so
// publication cannot be lost between a state change and the broker.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
}

// EventEncoder turns a domain event into a record.
type EventEncoder interface {
	Encode(e events.DomainEvent) (EventRecord, error)
}

// JSONEventEncoder marshals the event struct as-is.
type JSONEventEncoder struct{}

func (JSONEventEncoder) Encode(e events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		ID:         uuid.NewString(),
		Name:       e.EventName(),
		Aggregate:  e.AggregateID(),
		Payload:    payload,
		OccurredAt: e.OccurredAt(),
	}, nil
}

// RecordDomainEvents encodes and stores a batch of pending aggregate events.
func RecordDomainEvents(ctx context.Context, ob Outbox, enc EventEncoder, evts []events.DomainEvent) error {
	if ob == nil || len(evts) == 0 {
		return nil
	}
	for _, e := range evts {
		record, err := enc.Encode(e)
		if err != nil {
			return err
		}
		if err := ob.Add(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
