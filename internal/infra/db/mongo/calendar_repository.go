package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domaincalendar "staybook/internal/domain/calendar"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

type CalendarRepository struct {
	col *mongo.Collection
}

func NewCalendarRepository(db *mongo.Database) *CalendarRepository {
	return &CalendarRepository{col: db.Collection("unit_calendar")}
}

// EnsureIndexes creates the unique (unit_id, date) index backing the
// one-record-per-day invariant. Must run before the first write.
func (r *CalendarRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "unit_id", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *CalendarRepository) Day(ctx context.Context, unit units.UnitID, date time.Time) (*domaincalendar.DaySchedule, error) {
	filter := bson.M{"unit_id": string(unit), "date": daterange.Day(date).UnixMilli()}
	var doc dayDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domaincalendar.ErrDayNotFound
		}
		return nil, err
	}
	day := doc.toDomain()
	return &day, nil
}

// UpsertDay is a single ReplaceOne with upsert on the (unit_id, date) key, so
// insert-or-update is atomic on the server; the unique index rejects the
// duplicate a concurrent insert could otherwise create.
func (r *CalendarRepository) UpsertDay(ctx context.Context, day domaincalendar.DaySchedule) error {
	if err := day.Validate(); err != nil {
		return err
	}
	day.NormalizeDate()
	doc := newDayDocument(day)
	filter := bson.M{"unit_id": doc.UnitID, "date": doc.Date}
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, filter, doc, opts)
	return err
}

func (r *CalendarRepository) DaysInRange(ctx context.Context, unit units.UnitID, dr daterange.DateRange) ([]domaincalendar.DaySchedule, error) {
	filter := bson.M{
		"unit_id": string(unit),
		"date": bson.M{
			"$gte": dr.CheckIn.UnixMilli(),
			"$lt":  dr.CheckOut.UnixMilli(),
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []domaincalendar.DaySchedule
	for cursor.Next(ctx) {
		var doc dayDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

var _ domaincalendar.Store = (*CalendarRepository)(nil)

type dayDocument struct {
	UnitID    string            `bson:"unit_id"`
	Date      int64             `bson:"date"`
	Status    string            `bson:"status"`
	BookingID string            `bson:"booking_id,omitempty"`
	Override  *overrideDocument `bson:"override,omitempty"`
	UpdatedAt int64             `bson:"updated_at"`
}

type overrideDocument struct {
	Amount       int64   `bson:"amount"`
	Currency     string  `bson:"currency"`
	ExchangeRate float64 `bson:"exchange_rate"`
	Tier         string  `bson:"tier,omitempty"`
}

func newDayDocument(day domaincalendar.DaySchedule) dayDocument {
	doc := dayDocument{
		UnitID:    string(day.UnitID),
		Date:      day.Date.UnixMilli(),
		Status:    string(day.Status),
		BookingID: day.BookingID,
		UpdatedAt: day.UpdatedAt.UnixMilli(),
	}
	if day.Override != nil {
		doc.Override = &overrideDocument{
			Amount:       day.Override.Price.Amount,
			Currency:     day.Override.Price.Currency,
			ExchangeRate: day.Override.ExchangeRate,
			Tier:         day.Override.Tier,
		}
	}
	return doc
}

func (d dayDocument) toDomain() domaincalendar.DaySchedule {
	day := domaincalendar.DaySchedule{
		UnitID:    units.UnitID(d.UnitID),
		Date:      timestampToTime(d.Date),
		Status:    domaincalendar.ParseDayStatus(d.Status),
		BookingID: d.BookingID,
		UpdatedAt: timestampToTime(d.UpdatedAt),
	}
	if d.Override != nil {
		day.Override = &domaincalendar.PriceOverride{
			Price:        money.Money{Amount: d.Override.Amount, Currency: d.Override.Currency},
			ExchangeRate: d.Override.ExchangeRate,
			Tier:         d.Override.Tier,
		}
	}
	return day
}
