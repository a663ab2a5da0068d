package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainpolicy "staybook/internal/domain/policy"
	"staybook/internal/domain/units"
)

type PolicyRepository struct {
	col *mongo.Collection
}

func NewPolicyRepository(db *mongo.Database) *PolicyRepository {
	return &PolicyRepository{col: db.Collection("property_policies")}
}

// EnsureIndexes installs the partial unique index that rejects a second
// active policy for the same (property, type) at write time.
func (r *PolicyRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "property_id", Value: 1}, {Key: "type", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"active": true}),
	})
	return err
}

func (r *PolicyRepository) ByPropertyAndType(ctx context.Context, property units.PropertyID, t domainpolicy.Type) (*domainpolicy.PropertyPolicy, error) {
	filter := bson.M{"property_id": string(property), "type": string(t), "active": true}
	var doc policyDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainpolicy.ErrPolicyNotFound
		}
		return nil, err
	}
	p := doc.toDomain()
	return &p, nil
}

func (r *PolicyRepository) Save(ctx context.Context, p *domainpolicy.PropertyPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	doc := newPolicyDocument(p)
	filter := bson.M{"_id": doc.ID}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.col.ReplaceOne(ctx, filter, doc, opts); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainpolicy.ErrDuplicatePolicy
		}
		return err
	}
	return nil
}

var _ domainpolicy.Repository = (*PolicyRepository)(nil)

type policyDocument struct {
	ID                     string `bson:"_id"`
	PropertyID             string `bson:"property_id"`
	Type                   string `bson:"type"`
	CancellationWindowDays int    `bson:"cancellation_window_days"`
	MinHoursBeforeCheckIn  int    `bson:"min_hours_before_check_in"`
	RequireFullPrepayment  bool   `bson:"require_full_prepayment"`
	MinDepositPercent      int    `bson:"min_deposit_percent"`
	Rules                  string `bson:"rules,omitempty"`
	Active                 bool   `bson:"active"`
	UpdatedAt              int64  `bson:"updated_at"`
}

func newPolicyDocument(p *domainpolicy.PropertyPolicy) policyDocument {
	return policyDocument{
		ID:                     p.ID,
		PropertyID:             string(p.PropertyID),
		Type:                   string(p.Type),
		CancellationWindowDays: p.CancellationWindowDays,
		MinHoursBeforeCheckIn:  p.MinHoursBeforeCheckIn,
		RequireFullPrepayment:  p.RequireFullPrepayment,
		MinDepositPercent:      p.MinDepositPercent,
		Rules:                  p.Rules,
		Active:                 p.Active,
		UpdatedAt:              p.UpdatedAt.UnixMilli(),
	}
}

func (d policyDocument) toDomain() domainpolicy.PropertyPolicy {
	return domainpolicy.PropertyPolicy{
		ID:                     d.ID,
		PropertyID:             units.PropertyID(d.PropertyID),
		Type:                   domainpolicy.Type(d.Type),
		CancellationWindowDays: d.CancellationWindowDays,
		MinHoursBeforeCheckIn:  d.MinHoursBeforeCheckIn,
		RequireFullPrepayment:  d.RequireFullPrepayment,
		MinDepositPercent:      d.MinDepositPercent,
		Rules:                  d.Rules,
		Active:                 d.Active,
		UpdatedAt:              timestampToTime(d.UpdatedAt),
	}
}
