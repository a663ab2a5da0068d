package events

import "time"

// DomainEvent is something that happened inside an aggregate and is worth
// telling the rest of the system about.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder collects pending events inside an aggregate until the
// application layer drains them into the outbox.
type EventRecorder struct {
	pending []DomainEvent
}

// Record appends an event to the pending list.
func (r *EventRecorder) Record(e DomainEvent) {
	r.pending = append(r.pending, e)
}

// PendingEvents returns the events recorded since the last drain.
func (r *EventRecorder) PendingEvents() []DomainEvent {
	return r.pending
}

// ClearEvents drops the pending list after it has been persisted.
func (r *EventRecorder) ClearEvents() {
	r.pending = nil
}
