package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "staybook/internal/app/outbox"
	infraoutbox "staybook/internal/infra/outbox"
)

// OutboxStore persists pending events in the "app_outbox" collection. Claim
// uses an atomic findOneAndUpdate so two workers never publish the same
// document.
type OutboxStore struct {
	col *mongo.Collection
}

func NewOutboxStore(db *mongo.Database) *OutboxStore {
	return &OutboxStore{col: db.Collection("app_outbox")}
}

func (s *OutboxStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "claimed_by", Value: 1}, {Key: "retry_at", Value: 1}, {Key: "occurred_at", Value: 1}},
	})
	return err
}

func (s *OutboxStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	doc := outboxDocument{
		ID:         record.ID,
		Name:       record.Name,
		Aggregate:  record.Aggregate,
		Payload:    record.Payload,
		Headers:    record.Headers,
		OccurredAt: record.OccurredAt.UnixMilli(),
	}
	_, err := s.col.InsertOne(ctx, doc)
	return err
}

func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	now := time.Now()
	filter := bson.M{
		"claimed_by": "",
		"retry_at":   bson.M{"$lte": now.UnixMilli()},
	}
	update := bson.M{"$set": bson.M{"claimed_by": workerID}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}}).
		SetReturnDocument(options.After)
	var doc outboxDocument
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toEvent(), nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, retryAt time.Time, reason string) error {
	update := bson.M{
		"$set": bson.M{
			"claimed_by": "",
			"retry_at":   retryAt.UnixMilli(),
			"last_error": reason,
		},
		"$inc": bson.M{"attempts": 1},
	}
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

type outboxDocument struct {
	ID         string            `bson:"_id"`
	Name       string            `bson:"name"`
	Aggregate  string            `bson:"aggregate"`
	Payload    []byte            `bson:"payload"`
	Headers    map[string]string `bson:"headers,omitempty"`
	OccurredAt int64             `bson:"occurred_at"`
	ClaimedBy  string            `bson:"claimed_by"`
	RetryAt    int64             `bson:"retry_at"`
	Attempts   int               `bson:"attempts"`
	LastError  string            `bson:"last_error,omitempty"`
}

func (d outboxDocument) toEvent() *infraoutbox.EventDocument {
	return &infraoutbox.EventDocument{
		ID:         d.ID,
		Name:       d.Name,
		Aggregate:  d.Aggregate,
		Payload:    d.Payload,
		Headers:    d.Headers,
		OccurredAt: time.UnixMilli(d.OccurredAt).UTC(),
		ClaimedBy:  d.ClaimedBy,
		RetryAt:    time.UnixMilli(d.RetryAt).UTC(),
		Attempts:   d.Attempts,
		LastError:  d.LastError,
	}
}

var _ appoutbox.Outbox = (*OutboxStore)(nil)
var _ infraoutbox.Store = (*OutboxStore)(nil)
