package calendar

import (
	"context"
	"errors"
	"time"

	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

var (
	ErrDayNotFound = errors.New("calendar: day schedule not found")
	ErrUnitMissing = errors.New("calendar: unit id required")
)

// DayStatus tags a single calendar day of a unit. Available is the only free
// state; every other tag, including Unknown, makes the day unbookable.
type DayStatus string

const (
	StatusAvailable   DayStatus = "AVAILABLE"
	StatusBooked      DayStatus = "BOOKED"
	StatusBlocked     DayStatus = "BLOCKED"
	StatusMaintenance DayStatus = "MAINTENANCE"
	StatusUnknown     DayStatus = "UNKNOWN"
)

// ParseDayStatus maps stored tags onto the closed set, folding anything
// unrecognized into Unknown instead of comparing magic strings downstream.
func ParseDayStatus(raw string) DayStatus {
	switch DayStatus(raw) {
	case StatusAvailable, StatusBooked, StatusBlocked, StatusMaintenance:
		return DayStatus(raw)
	default:
		return StatusUnknown
	}
}

// Free reports whether the status permits booking the day.
func (s DayStatus) Free() bool {
	return s == StatusAvailable
}

// PriceOverride replaces the unit base rate for a single day, e.g. an event
// surcharge. ExchangeRate is carried through for downstream ledger consumers
// and never used for conversion here.
type PriceOverride struct {
	Price        money.Money
	ExchangeRate float64
	Tier         string
}

// DaySchedule is the per-(unit, date) calendar record. Absence of a record
// means the day is Available at the unit base rate.
type DaySchedule struct {
	UnitID    units.UnitID
	Date      time.Time
	Status    DayStatus
	BookingID string
	Override  *PriceOverride
	UpdatedAt time.Time
}

// Free reports whether the day can accept a new booking.
func (d DaySchedule) Free() bool {
	return d.Status.Free()
}

// Validate checks the record invariants prior to persistence.
func (d DaySchedule) Validate() error {
	if d.UnitID == "" {
		return ErrUnitMissing
	}
	if d.Date.IsZero() {
		return errors.New("calendar: date required")
	}
	return nil
}

// NormalizeDate truncates the record date to day granularity UTC so the
// (unit, date) key is stable regardless of the caller's clock location.
func (d *DaySchedule) NormalizeDate() {
	d.Date = daterange.Day(d.Date)
}

// Store owns day schedules. UpsertDay must be atomic insert-or-update on the
// (unit, date) key; at most one record per key may ever exist.
type Store interface {
	Day(ctx context.Context, unit units.UnitID, date time.Time) (*DaySchedule, error)
	UpsertDay(ctx context.Context, day DaySchedule) error
	DaysInRange(ctx context.Context, unit units.UnitID, dr daterange.DateRange) ([]DaySchedule, error)
}
