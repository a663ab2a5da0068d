package memory

import (
	"context"
	"testing"
	"time"

	appoutbox "staybook/internal/app/outbox"
)

func record(id string) appoutbox.EventRecord {
	return appoutbox.EventRecord{
		ID:         id,
		Name:       "booking.confirmed",
		Aggregate:  "bk-1",
		Payload:    []byte(`{"booking_id":"bk-1"}`),
		OccurredAt: time.Now(),
	}
}

func TestOutboxClaimIsExclusive(t *testing.T) {
	ob := NewOutbox()
	ctx := context.Background()
	if err := ob.Add(ctx, record("evt-1")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	doc, err := ob.Claim(ctx, "worker-a")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if doc == nil || doc.ID != "evt-1" {
		t.Fatalf("doc = %+v", doc)
	}

	other, err := ob.Claim(ctx, "worker-b")
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if other != nil {
		t.Fatalf("claimed document handed out twice: %+v", other)
	}
}

func TestOutboxMarkSentRemoves(t *testing.T) {
	ob := NewOutbox()
	ctx := context.Background()
	if err := ob.Add(ctx, record("evt-1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	doc, _ := ob.Claim(ctx, "worker-a")
	if err := ob.MarkSent(ctx, doc.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if ob.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", ob.Pending())
	}
}

func TestOutboxMarkFailedDefersRetry(t *testing.T) {
	ob := NewOutbox()
	ctx := context.Background()
	if err := ob.Add(ctx, record("evt-1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	doc, _ := ob.Claim(ctx, "worker-a")
	if err := ob.MarkFailed(ctx, doc.ID, time.Now().Add(time.Hour), "broker down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	// Still deferred: retry time has not passed.
	if again, _ := ob.Claim(ctx, "worker-a"); again != nil {
		t.Fatalf("deferred document claimed: %+v", again)
	}

	if err := ob.MarkFailed(ctx, doc.ID, time.Now().Add(-time.Minute), "broker down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	again, err := ob.Claim(ctx, "worker-b")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if again == nil || again.Attempts != 2 {
		t.Fatalf("doc = %+v, want attempts 2", again)
	}
}
