package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain/calendar"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

var ErrCurrencyUnset = errors.New("pricing: currency must be defined")

// DayCharge is the resolved price of a single night of a stay.
type DayCharge struct {
	Date     time.Time
	Amount   money.Money
	Tier     string
	Override bool
}

// Quote is the aggregated price of a candidate stay.
type Quote struct {
	UnitID   units.UnitID
	Nights   int
	Days     []DayCharge
	Total    money.Money
	QuotedAt time.Time
}

// TotalPrice sums the stay night by night: a day's calendar override when one
// exists, the unit base rate otherwise. An empty range prices to zero. The
// sum is additive over adjacent subranges. Currency is uniform per unit;
// an override in a different currency surfaces money.ErrCurrencyMismatch
// rather than inventing a conversion.
func TotalPrice(ctx context.Context, store calendar.Store, unit *units.Unit, dr daterange.DateRange) (money.Money, error) {
	q, err := QuoteStay(ctx, store, unit, dr, time.Time{})
	if err != nil {
		return money.Money{}, err
	}
	return q.Total, nil
}

// QuoteStay resolves each night of the range and aggregates the total.
func QuoteStay(ctx context.Context, store calendar.Store, unit *units.Unit, dr daterange.DateRange, now time.Time) (Quote, error) {
	if unit == nil {
		return Quote{}, units.ErrUnitNotFound
	}
	if unit.BaseRate.Currency == "" {
		return Quote{}, ErrCurrencyUnset
	}
	days, err := store.DaysInRange(ctx, unit.ID, dr)
	if err != nil {
		return Quote{}, err
	}
	overrides := make(map[time.Time]*calendar.PriceOverride, len(days))
	for _, day := range days {
		if day.Override != nil {
			overrides[day.Date] = day.Override
		}
	}
	q := Quote{UnitID: unit.ID, Nights: dr.Nights(), QuotedAt: now, Total: money.Zero(unit.BaseRate.Currency)}
	for _, d := range dr.Days() {
		charge := DayCharge{Date: d, Amount: unit.BaseRate}
		if ov, ok := overrides[d]; ok {
			charge.Amount = ov.Price
			charge.Tier = ov.Tier
			charge.Override = true
		}
		total, err := q.Total.Add(charge.Amount)
		if err != nil {
			return Quote{}, fmt.Errorf("pricing: day %s: %w", d.Format("2006-01-02"), err)
		}
		q.Total = total
		q.Days = append(q.Days, charge)
	}
	return q, nil
}
