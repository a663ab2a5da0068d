package booking

import (
	"context"
	"errors"
	"time"

	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/events"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

var (
	ErrInvalidGuests   = errors.New("booking: guests count must be positive")
	ErrInvalidState    = errors.New("booking: invalid state transition")
	ErrBookingNotFound = errors.New("booking: not found")
)

type BookingID string

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCheckedIn Status = "CHECKED_IN"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed out of the state.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// DeriveStatus materializes the natural lifecycle state of a stay from elapsed
// time against the half-open [checkIn, checkOut) window. It is total: exactly
// one of Confirmed, CheckedIn, Completed is returned for any instant. It must
// never be applied to a cancelled booking; cancellation is an explicit
// transition, not a derived one.
func DeriveStatus(now, checkIn, checkOut time.Time) Status {
	switch {
	case now.Before(checkIn):
		return StatusConfirmed
	case now.Before(checkOut):
		return StatusCheckedIn
	default:
		return StatusCompleted
	}
}

// Booking reserves one unit for a half-open date range. Bookings are never
// physically deleted; cancellation flags them and frees their calendar days.
type Booking struct {
	ID                 BookingID
	UnitID             units.UnitID
	GuestID            string
	Range              daterange.DateRange
	Guests             int
	Total              money.Money
	ExchangeRate       float64
	Status             Status
	BookedAt           time.Time
	ActualCheckIn      *time.Time
	ActualCheckOut     *time.Time
	CancelReason       string
	RequireFullPayment bool
	DepositPercent     int
	UpdatedAt          time.Time
	Version            int64
	events.EventRecorder
}

// Repository persists bookings. ActiveByUnit returns every non-cancelled
// booking of a unit; it is the authoritative input for overlap checks.
type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, b *Booking) error
	ActiveByUnit(ctx context.Context, unit units.UnitID) ([]*Booking, error)
	ListByGuest(ctx context.Context, guestID string) ([]*Booking, error)
}

type CreateParams struct {
	ID                 BookingID
	UnitID             units.UnitID
	GuestID            string
	Range              daterange.DateRange
	Guests             int
	Total              money.Money
	ExchangeRate       float64
	RequireFullPayment bool
	DepositPercent     int
	Now                time.Time
}

// NewBooking admits a reservation the conflict detector has already cleared.
func NewBooking(params CreateParams) (*Booking, error) {
	if params.Guests <= 0 {
		return nil, ErrInvalidGuests
	}
	if params.GuestID == "" {
		return nil, errors.New("booking: guest id required")
	}
	if params.UnitID == "" {
		return nil, errors.New("booking: unit id required")
	}
	now := params.Now.UTC()
	b := &Booking{
		ID:                 params.ID,
		UnitID:             params.UnitID,
		GuestID:            params.GuestID,
		Range:              params.Range,
		Guests:             params.Guests,
		Total:              params.Total,
		ExchangeRate:       params.ExchangeRate,
		Status:             StatusConfirmed,
		BookedAt:           now,
		RequireFullPayment: params.RequireFullPayment,
		DepositPercent:     params.DepositPercent,
		UpdatedAt:          now,
	}
	b.Record(BookingConfirmed{BookingID: b.ID, UnitID: b.UnitID, GuestID: b.GuestID, Range: b.Range, Total: b.Total, At: now})
	return b, nil
}

// Refresh re-derives the lifecycle status from elapsed time. The status only
// ever moves forward: terminal states stay put, and an explicit early
// check-in is not undone when the clock still reads before the scheduled
// check-in.
func (b *Booking) Refresh(now time.Time) {
	if b.Status.Terminal() {
		return
	}
	next := DeriveStatus(now, b.Range.CheckIn, b.Range.CheckOut)
	if next == StatusConfirmed && b.Status == StatusCheckedIn {
		return
	}
	if next != b.Status {
		b.Status = next
		b.UpdatedAt = now.UTC()
	}
}

// CheckIn records the guest arrival.
func (b *Booking) CheckIn(now time.Time) error {
	if b.Status != StatusConfirmed {
		return ErrInvalidState
	}
	at := now.UTC()
	b.Status = StatusCheckedIn
	b.ActualCheckIn = &at
	b.UpdatedAt = at
	b.Record(GuestCheckedIn{BookingID: b.ID, At: at})
	return nil
}

// CheckOut records the guest departure and completes the stay.
func (b *Booking) CheckOut(now time.Time) error {
	if b.Status != StatusCheckedIn {
		return ErrInvalidState
	}
	at := now.UTC()
	b.Status = StatusCompleted
	b.ActualCheckOut = &at
	b.UpdatedAt = at
	b.Record(GuestCheckedOut{BookingID: b.ID, At: at})
	return nil
}

// Cancel flags the booking with the given refund entitlement. Completed and
// already-cancelled bookings reject the transition.
func (b *Booking) Cancel(reason string, refund money.Money, now time.Time) error {
	switch b.Status {
	case StatusConfirmed, StatusCheckedIn:
	default:
		return ErrInvalidState
	}
	at := now.UTC()
	b.Status = StatusCancelled
	b.CancelReason = reason
	b.UpdatedAt = at
	b.Record(BookingCancelled{BookingID: b.ID, UnitID: b.UnitID, Range: b.Range, Refund: refund, Reason: reason, At: at})
	return nil
}
