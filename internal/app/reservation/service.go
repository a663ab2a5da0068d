package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"staybook/internal/app/outbox"
	"staybook/internal/domain/availability"
	"staybook/internal/domain/booking"
	"staybook/internal/domain/calendar"
	"staybook/internal/domain/policy"
	"staybook/internal/domain/pricing"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

var (
	// ErrDatesUnavailable is the expected negative outcome of an admission
	// attempt, not an exceptional condition.
	ErrDatesUnavailable   = errors.New("reservation: requested dates are not available")
	ErrCancellationDenied = errors.New("reservation: cancellation not permitted by property policy")
	ErrModificationDenied = errors.New("reservation: modification not permitted by property policy")
)

// Service orchestrates admission, pricing, policy evaluation and calendar
// writes for one unit at a time. The conflict check and the writes that follow
// run under a per-unit mutex so two concurrent requests cannot both pass the
// check before either writes.
type Service struct {
	Catalog  units.Catalog
	Calendar calendar.Store
	Bookings booking.Repository
	Policies policy.Repository
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Logger   *slog.Logger

	locks unitLocks
}

type ReserveParams struct {
	UnitID   units.UnitID
	GuestID  string
	CheckIn  time.Time
	CheckOut time.Time
	Guests   int
	Now      time.Time
}

// Reserve admits a new booking or reports ErrDatesUnavailable.
func (s *Service) Reserve(ctx context.Context, params ReserveParams) (*booking.Booking, error) {
	dr, err := daterange.New(params.CheckIn, params.CheckOut)
	if err != nil {
		return nil, err
	}
	if err := booking.ValidateDateRange(dr, params.Now); err != nil {
		return nil, err
	}
	unit, err := s.Catalog.ByID(ctx, params.UnitID)
	if err != nil {
		return nil, err
	}

	mu := s.locks.lock(unit.ID)
	defer mu.Unlock()

	existing, err := s.Bookings.ActiveByUnit(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	ok, err := availability.CanBook(ctx, s.Calendar, unit.ID, dr, existing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDatesUnavailable
	}

	quote, err := pricing.QuoteStay(ctx, s.Calendar, unit, dr, params.Now)
	if err != nil {
		return nil, err
	}
	paymentPolicy, err := s.policyFor(ctx, unit.PropertyID, policy.TypePayment)
	if err != nil {
		return nil, err
	}
	requireFull, deposit := policy.PaymentRequirements(paymentPolicy)

	b, err := booking.NewBooking(booking.CreateParams{
		ID:                 booking.BookingID(uuid.NewString()),
		UnitID:             unit.ID,
		GuestID:            params.GuestID,
		Range:              dr,
		Guests:             params.Guests,
		Total:              quote.Total,
		ExchangeRate:       1,
		RequireFullPayment: requireFull,
		DepositPercent:     deposit,
		Now:                params.Now,
	})
	if err != nil {
		return nil, err
	}
	// Calendar days go first and the booking row last, so a failed write
	// leaves no booking whose days were never held. A half-marked range is
	// rolled back before the error propagates.
	if err := s.markDays(ctx, b, calendar.StatusBooked, string(b.ID), params.Now); err != nil {
		s.rollbackDays(ctx, b, params.Now)
		return nil, err
	}
	if err := s.Bookings.Save(ctx, b); err != nil {
		s.rollbackDays(ctx, b, params.Now)
		return nil, err
	}
	if err := s.drainEvents(ctx, b); err != nil {
		return nil, err
	}
	s.log().Info("booking reserved", "booking_id", b.ID, "unit_id", b.UnitID, "nights", dr.Nights(), "total", b.Total.Amount)
	return b, nil
}

// CancelOutcome carries the money amounts the ledger subsystem records.
type CancelOutcome struct {
	Booking       *booking.Booking
	RefundPercent int
	Refund        money.Money
	Penalty       money.Money
}

// Cancel applies the property cancellation policy at the given instant and,
// when permitted, flags the booking and frees its calendar days.
func (s *Service) Cancel(ctx context.Context, id booking.BookingID, reason string, now time.Time) (*CancelOutcome, error) {
	b, err := s.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	unit, err := s.Catalog.ByID(ctx, b.UnitID)
	if err != nil {
		return nil, err
	}

	mu := s.locks.lock(unit.ID)
	defer mu.Unlock()

	cancellation, err := s.policyFor(ctx, unit.PropertyID, policy.TypeCancellation)
	if err != nil {
		return nil, err
	}
	if !policy.CanCancel(cancellation, b.Range.CheckIn, now) {
		return nil, ErrCancellationDenied
	}
	percent := policy.RefundPercent(cancellation, b.Range.CheckIn, now)
	refund := b.Total.PercentOf(percent)
	penalty, err := b.Total.Sub(refund)
	if err != nil {
		return nil, err
	}

	if err := b.Cancel(reason, refund, now); err != nil {
		return nil, err
	}
	if err := s.Bookings.Save(ctx, b); err != nil {
		return nil, err
	}
	if err := s.releaseDays(ctx, b, now); err != nil {
		return nil, err
	}
	if err := s.drainEvents(ctx, b); err != nil {
		return nil, err
	}
	s.log().Info("booking cancelled", "booking_id", b.ID, "refund_percent", percent, "refund", refund.Amount)
	return &CancelOutcome{Booking: b, RefundPercent: percent, Refund: refund, Penalty: penalty}, nil
}

// Modify moves a booking to a new date range when the modification policy
// permits and the new range is admissible. The booking's own days are
// transparent to the conflict check.
func (s *Service) Modify(ctx context.Context, id booking.BookingID, checkIn, checkOut, now time.Time) (*booking.Booking, error) {
	dr, err := daterange.New(checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	b, err := s.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, booking.ErrInvalidState
	}
	unit, err := s.Catalog.ByID(ctx, b.UnitID)
	if err != nil {
		return nil, err
	}

	mu := s.locks.lock(unit.ID)
	defer mu.Unlock()

	modification, err := s.policyFor(ctx, unit.PropertyID, policy.TypeModification)
	if err != nil {
		return nil, err
	}
	if !policy.CanModify(modification, b.Range.CheckIn, now) {
		return nil, ErrModificationDenied
	}

	existing, err := s.Bookings.ActiveByUnit(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	others := existing[:0:0]
	for _, other := range existing {
		if other.ID != b.ID {
			others = append(others, other)
		}
	}
	for _, other := range others {
		if other.Status != booking.StatusCancelled && other.Range.Overlaps(dr) {
			return nil, ErrDatesUnavailable
		}
	}
	// The booking's own days are transparent: a shift or extension may reuse
	// nights it already holds.
	days, err := s.Calendar.DaysInRange(ctx, unit.ID, dr)
	if err != nil {
		return nil, err
	}
	for _, day := range days {
		if !day.Free() && day.BookingID != string(b.ID) {
			return nil, ErrDatesUnavailable
		}
	}

	quote, err := pricing.QuoteStay(ctx, s.Calendar, unit, dr, now)
	if err != nil {
		return nil, err
	}

	oldRange, oldTotal := b.Range, b.Total
	if err := s.releaseDays(ctx, b, now); err != nil {
		return nil, err
	}
	b.Range = dr
	b.Total = quote.Total
	b.UpdatedAt = now.UTC()
	// Puts the old days back when the move cannot be completed, so the stored
	// booking and the calendar stay in agreement.
	restore := func() {
		s.rollbackDays(ctx, b, now)
		b.Range, b.Total = oldRange, oldTotal
		if err := s.markDays(ctx, b, calendar.StatusBooked, string(b.ID), now); err != nil {
			s.log().Error("calendar restore failed", "booking_id", b.ID, "err", err)
		}
	}
	if err := s.markDays(ctx, b, calendar.StatusBooked, string(b.ID), now); err != nil {
		restore()
		return nil, err
	}
	if err := s.Bookings.Save(ctx, b); err != nil {
		restore()
		return nil, err
	}
	s.log().Info("booking modified", "booking_id", b.ID, "check_in", dr.CheckIn, "check_out", dr.CheckOut)
	return b, nil
}

// CheckIn records arrival for a confirmed booking.
func (s *Service) CheckIn(ctx context.Context, id booking.BookingID, now time.Time) (*booking.Booking, error) {
	return s.transition(ctx, id, now, (*booking.Booking).CheckIn)
}

// CheckOut records departure and completes the stay.
func (s *Service) CheckOut(ctx context.Context, id booking.BookingID, now time.Time) (*booking.Booking, error) {
	return s.transition(ctx, id, now, (*booking.Booking).CheckOut)
}

// Get loads a booking and opportunistically refreshes its derived status.
func (s *Service) Get(ctx context.Context, id booking.BookingID, now time.Time) (*booking.Booking, error) {
	b, err := s.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := b.Status
	b.Refresh(now)
	if b.Status != before {
		if err := s.Bookings.Save(ctx, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// BlockDates places an operator hold on a range of days. Days already linked
// to a booking are refused.
func (s *Service) BlockDates(ctx context.Context, unit units.UnitID, dr daterange.DateRange, status calendar.DayStatus, now time.Time) error {
	if status.Free() {
		return fmt.Errorf("reservation: %q is not a blocking status", status)
	}
	mu := s.locks.lock(unit)
	defer mu.Unlock()

	days, err := s.Calendar.DaysInRange(ctx, unit, dr)
	if err != nil {
		return err
	}
	for _, day := range days {
		if day.BookingID != "" {
			return ErrDatesUnavailable
		}
	}
	for _, d := range dr.Days() {
		day := calendar.DaySchedule{UnitID: unit, Date: d, Status: status, UpdatedAt: now.UTC()}
		if err := s.Calendar.UpsertDay(ctx, day); err != nil {
			return err
		}
	}
	s.log().Info("dates blocked", "unit_id", unit, "from", dr.CheckIn, "to", dr.CheckOut, "status", status)
	return nil
}

// UnblockDates releases operator holds back to Available. Booked days keep
// their link and stay untouched.
func (s *Service) UnblockDates(ctx context.Context, unit units.UnitID, dr daterange.DateRange, now time.Time) error {
	mu := s.locks.lock(unit)
	defer mu.Unlock()

	days, err := s.Calendar.DaysInRange(ctx, unit, dr)
	if err != nil {
		return err
	}
	for _, day := range days {
		if day.BookingID != "" || day.Status.Free() {
			continue
		}
		day.Status = calendar.StatusAvailable
		day.UpdatedAt = now.UTC()
		if err := s.Calendar.UpsertDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

// ListByGuest returns the guest's bookings with derived statuses refreshed
// in the returned copies only; persistence happens lazily on Get.
func (s *Service) ListByGuest(ctx context.Context, guestID string, now time.Time) ([]*booking.Booking, error) {
	bookings, err := s.Bookings.ListByGuest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	for _, b := range bookings {
		b.Refresh(now)
	}
	return bookings, nil
}

// AvailableDates lists the free days of a unit in [start, end).
func (s *Service) AvailableDates(ctx context.Context, unit units.UnitID, start, end time.Time) ([]time.Time, error) {
	dr, err := daterange.New(start, end)
	if err != nil {
		return nil, err
	}
	return availability.AvailableDates(ctx, s.Calendar, unit, dr)
}

// FirstAvailableRun searches for the earliest run of nights free days.
func (s *Service) FirstAvailableRun(ctx context.Context, unit units.UnitID, searchFrom time.Time, nights, horizonMonths int) (daterange.DateRange, bool, error) {
	return availability.FirstAvailableRun(ctx, s.Calendar, unit, searchFrom, nights, horizonMonths)
}

// Quote prices a candidate stay without reserving it.
func (s *Service) Quote(ctx context.Context, unit units.UnitID, checkIn, checkOut, now time.Time) (pricing.Quote, error) {
	dr, err := daterange.New(checkIn, checkOut)
	if err != nil {
		return pricing.Quote{}, err
	}
	u, err := s.Catalog.ByID(ctx, unit)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.QuoteStay(ctx, s.Calendar, u, dr, now)
}

func (s *Service) transition(ctx context.Context, id booking.BookingID, now time.Time, apply func(*booking.Booking, time.Time) error) (*booking.Booking, error) {
	b, err := s.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(b, now); err != nil {
		return nil, err
	}
	if err := s.Bookings.Save(ctx, b); err != nil {
		return nil, err
	}
	if err := s.drainEvents(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// policyFor treats an absent policy row as nil; the policy package's
// fail-closed defaults take over from there.
func (s *Service) policyFor(ctx context.Context, property units.PropertyID, t policy.Type) (*policy.PropertyPolicy, error) {
	p, err := s.Policies.ByPropertyAndType(ctx, property, t)
	if errors.Is(err, policy.ErrPolicyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) markDays(ctx context.Context, b *booking.Booking, status calendar.DayStatus, bookingRef string, now time.Time) error {
	for _, d := range b.Range.Days() {
		day, err := s.Calendar.Day(ctx, b.UnitID, d)
		if errors.Is(err, calendar.ErrDayNotFound) {
			day = &calendar.DaySchedule{UnitID: b.UnitID, Date: d}
		} else if err != nil {
			return err
		}
		day.Status = status
		day.BookingID = bookingRef
		day.UpdatedAt = now.UTC()
		if err := s.Calendar.UpsertDay(ctx, *day); err != nil {
			return err
		}
	}
	return nil
}

// rollbackDays frees whatever days a failed write path already marked for the
// booking. The failure being compensated takes precedence; a rollback error
// is only logged.
func (s *Service) rollbackDays(ctx context.Context, b *booking.Booking, now time.Time) {
	if err := s.releaseDays(ctx, b, now); err != nil {
		s.log().Error("calendar rollback failed", "booking_id", b.ID, "err", err)
	}
}

// releaseDays soft-uncouples calendar days from a booking: the record stays,
// the link is cleared and the day becomes Available again.
func (s *Service) releaseDays(ctx context.Context, b *booking.Booking, now time.Time) error {
	for _, d := range b.Range.Days() {
		day, err := s.Calendar.Day(ctx, b.UnitID, d)
		if errors.Is(err, calendar.ErrDayNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if day.BookingID != string(b.ID) {
			continue
		}
		day.Status = calendar.StatusAvailable
		day.BookingID = ""
		day.UpdatedAt = now.UTC()
		if err := s.Calendar.UpsertDay(ctx, *day); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) drainEvents(ctx context.Context, b *booking.Booking) error {
	pending := b.PendingEvents()
	b.ClearEvents()
	return outbox.RecordDomainEvents(ctx, s.Outbox, s.encoder(), pending)
}

func (s *Service) encoder() outbox.EventEncoder {
	if s.Encoder != nil {
		return s.Encoder
	}
	return outbox.JSONEventEncoder{}
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
