package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "staybook/internal/domain/booking"
	domainrange "staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

var ErrConcurrentUpdate = errors.New("mongo: concurrent update detected")

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection("bookings")}
}

func (r *BookingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "guest_id", Value: 1}, {Key: "booked_at", Value: -1}}},
	})
	return err
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) ActiveByUnit(ctx context.Context, unit units.UnitID) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"unit_id": string(unit),
		"status":  bson.M{"$ne": string(domainbooking.StatusCancelled)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "range.check_in", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *BookingRepository) ListByGuest(ctx context.Context, guestID string) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "booked_at", Value: 1}})
	return r.find(ctx, bson.M{"guest_id": guestID}, opts)
}

func (r *BookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainbooking.Booking, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []*domainbooking.Booking
	for cursor.Next(ctx) {
		var doc bookingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

type bookingDocument struct {
	ID                 string        `bson:"_id"`
	UnitID             string        `bson:"unit_id"`
	GuestID            string        `bson:"guest_id"`
	Range              rangeDocument `bson:"range"`
	Guests             int           `bson:"guests"`
	TotalAmount        int64         `bson:"total_amount"`
	TotalCurrency      string        `bson:"total_currency"`
	ExchangeRate       float64       `bson:"exchange_rate"`
	Status             string        `bson:"status"`
	BookedAt           int64         `bson:"booked_at"`
	ActualCheckIn      *int64        `bson:"actual_check_in,omitempty"`
	ActualCheckOut     *int64        `bson:"actual_check_out,omitempty"`
	CancelReason       string        `bson:"cancel_reason,omitempty"`
	RequireFullPayment bool          `bson:"require_full_payment"`
	DepositPercent     int           `bson:"deposit_percent"`
	UpdatedAt          int64         `bson:"updated_at"`
	Version            int64         `bson:"version"`
}

type rangeDocument struct {
	CheckIn  int64 `bson:"check_in"`
	CheckOut int64 `bson:"check_out"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:                 string(b.ID),
		UnitID:             string(b.UnitID),
		GuestID:            b.GuestID,
		Range:              rangeDocument{CheckIn: b.Range.CheckIn.UnixMilli(), CheckOut: b.Range.CheckOut.UnixMilli()},
		Guests:             b.Guests,
		TotalAmount:        b.Total.Amount,
		TotalCurrency:      b.Total.Currency,
		ExchangeRate:       b.ExchangeRate,
		Status:             string(b.Status),
		BookedAt:           b.BookedAt.UnixMilli(),
		ActualCheckIn:      optionalMillis(b.ActualCheckIn),
		ActualCheckOut:     optionalMillis(b.ActualCheckOut),
		CancelReason:       b.CancelReason,
		RequireFullPayment: b.RequireFullPayment,
		DepositPercent:     b.DepositPercent,
		UpdatedAt:          b.UpdatedAt.UnixMilli(),
		Version:            b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	dr := domainrange.DateRange{CheckIn: timestampToTime(d.Range.CheckIn), CheckOut: timestampToTime(d.Range.CheckOut)}
	return &domainbooking.Booking{
		ID:                 domainbooking.BookingID(d.ID),
		UnitID:             units.UnitID(d.UnitID),
		GuestID:            d.GuestID,
		Range:              dr,
		Guests:             d.Guests,
		Total:              money.Money{Amount: d.TotalAmount, Currency: d.TotalCurrency},
		ExchangeRate:       d.ExchangeRate,
		Status:             domainbooking.Status(d.Status),
		BookedAt:           timestampToTime(d.BookedAt),
		ActualCheckIn:      optionalTime(d.ActualCheckIn),
		ActualCheckOut:     optionalTime(d.ActualCheckOut),
		CancelReason:       d.CancelReason,
		RequireFullPayment: d.RequireFullPayment,
		DepositPercent:     d.DepositPercent,
		UpdatedAt:          timestampToTime(d.UpdatedAt),
		Version:            d.Version,
	}
}

func optionalMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func optionalTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := timestampToTime(*ms)
	return &t
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
