package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"staybook/internal/domain/booking"
	"staybook/internal/domain/calendar"
	"staybook/internal/domain/policy"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
	"staybook/internal/infra/storage/memory"
)

type fixture struct {
	service  *Service
	catalog  *memory.UnitCatalog
	calendar *memory.CalendarStore
	bookings *memory.BookingRepository
	policies *memory.PolicyRepository
	outbox   *memory.Outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog:  memory.NewUnitCatalog(),
		calendar: memory.NewCalendarStore(),
		bookings: memory.NewBookingRepository(),
		policies: memory.NewPolicyRepository(),
		outbox:   memory.NewOutbox(),
	}
	f.catalog.Put(&units.Unit{
		ID:            "unit-1",
		PropertyID:    "prop-1",
		BaseRate:      money.Must(30_000, "RUB"),
		PricingMethod: units.PricePerNight,
		Cancellable:   true,
	})
	f.service = &Service{
		Catalog:  f.catalog,
		Calendar: f.calendar,
		Bookings: f.bookings,
		Policies: f.policies,
		Outbox:   f.outbox,
	}
	return f
}

func (f *fixture) savePolicy(t *testing.T, p *policy.PropertyPolicy) {
	t.Helper()
	p.Active = true
	if p.PropertyID == "" {
		p.PropertyID = "prop-1"
	}
	if err := f.policies.Save(context.Background(), p); err != nil {
		t.Fatalf("save policy: %v", err)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var clock = date(2026, 6, 1)

func reserveParams(in, out time.Time) ReserveParams {
	return ReserveParams{
		UnitID:   "unit-1",
		GuestID:  "guest-1",
		CheckIn:  in,
		CheckOut: out,
		Guests:   2,
		Now:      clock,
	}
}

func TestReserveMarksCalendarAndPricesStay(t *testing.T) {
	f := newFixture(t)
	b, err := f.service.Reserve(context.Background(), reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.Total.Amount != 90_000 {
		t.Fatalf("total = %d, want 90000", b.Total.Amount)
	}
	if b.Status != booking.StatusConfirmed {
		t.Fatalf("status = %s", b.Status)
	}
	if b.RequireFullPayment || b.DepositPercent != policy.DefaultDepositPercent {
		t.Fatalf("payment terms = (%v, %d)", b.RequireFullPayment, b.DepositPercent)
	}

	for _, d := range b.Range.Days() {
		day, err := f.calendar.Day(context.Background(), "unit-1", d)
		if err != nil {
			t.Fatalf("Day(%v): %v", d, err)
		}
		if day.Status != calendar.StatusBooked || day.BookingID != string(b.ID) {
			t.Fatalf("day %v = %+v", d, day)
		}
	}
	if f.outbox.Pending() != 1 {
		t.Fatalf("outbox pending = %d, want 1", f.outbox.Pending())
	}
}

func TestReserveRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 15))); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 12), date(2026, 6, 18))); !errors.Is(err, ErrDatesUnavailable) {
		t.Fatalf("expected ErrDatesUnavailable, got %v", err)
	}
}

func TestReserveAdmitsBackToBackStays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 15))); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 15), date(2026, 6, 18))); err != nil {
		t.Fatalf("back-to-back Reserve: %v", err)
	}
}

func TestReserveRejectsPastCheckIn(t *testing.T) {
	f := newFixture(t)
	params := reserveParams(date(2026, 5, 20), date(2026, 5, 25))
	if _, err := f.service.Reserve(context.Background(), params); !errors.Is(err, booking.ErrCheckInInPast) {
		t.Fatalf("expected ErrCheckInInPast, got %v", err)
	}
}

func TestReserveUnknownUnit(t *testing.T) {
	f := newFixture(t)
	params := reserveParams(date(2026, 6, 10), date(2026, 6, 12))
	params.UnitID = "missing"
	if _, err := f.service.Reserve(context.Background(), params); !errors.Is(err, units.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}

func TestConcurrentReservesAdmitExactlyOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const attempts = 16

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 15)))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrDatesUnavailable):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 1 {
		t.Fatalf("admitted = %d, want 1", admitted)
	}
}

func TestReserveIdempotentReplaysOriginalBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keys := memory.NewIdempotencyStore()

	first, replayed, err := f.service.ReserveIdempotent(ctx, keys, "key-1", reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if replayed {
		t.Fatal("first attempt reported as replay")
	}

	again, replayed, err := f.service.ReserveIdempotent(ctx, keys, "key-1", reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !replayed || again.ID != first.ID {
		t.Fatalf("retry: replayed = %v, id = %s, want %s", replayed, again.ID, first.ID)
	}
	if f.outbox.Pending() != 1 {
		t.Fatalf("outbox pending = %d, want 1", f.outbox.Pending())
	}
}

// failingCalendar rejects the upsert of one specific day and delegates
// everything else to the wrapped store.
type failingCalendar struct {
	calendar.Store
	failOn time.Time
	err    error
}

func (f *failingCalendar) UpsertDay(ctx context.Context, day calendar.DaySchedule) error {
	if day.Date.Equal(f.failOn) {
		return f.err
	}
	return f.Store.UpsertDay(ctx, day)
}

func TestReserveRollsBackDaysOnCalendarFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("calendar down")
	f.service.Calendar = &failingCalendar{Store: f.calendar, failOn: date(2026, 6, 12), err: boom}

	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if !errors.Is(err, boom) {
		t.Fatalf("Reserve: %v, want %v", err, boom)
	}
	if b != nil {
		t.Fatalf("booking returned despite failure: %+v", b)
	}

	// The days marked before the failure are free again.
	for _, d := range []time.Time{date(2026, 6, 10), date(2026, 6, 11)} {
		day, err := f.calendar.Day(ctx, "unit-1", d)
		if errors.Is(err, calendar.ErrDayNotFound) {
			continue
		}
		if err != nil {
			t.Fatalf("Day(%v): %v", d, err)
		}
		if !day.Free() || day.BookingID != "" {
			t.Fatalf("day %v still held: %+v", d, day)
		}
	}

	// The full range is admissible once the calendar recovers.
	f.service.Calendar = f.calendar
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13))); err != nil {
		t.Fatalf("Reserve after recovery: %v", err)
	}
}

func TestModifyRestoresOldDaysOnCalendarFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.savePolicy(t, &policy.PropertyPolicy{
		ID:   "pol-1",
		Type: policy.TypeModification,
	})
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	boom := errors.New("calendar down")
	f.service.Calendar = &failingCalendar{Store: f.calendar, failOn: date(2026, 6, 21), err: boom}
	if _, err := f.service.Modify(ctx, b.ID, date(2026, 6, 20), date(2026, 6, 23), clock); !errors.Is(err, boom) {
		t.Fatalf("Modify: %v, want %v", err, boom)
	}

	stored, err := f.bookings.ByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if !stored.Range.CheckIn.Equal(date(2026, 6, 10)) || !stored.Range.CheckOut.Equal(date(2026, 6, 13)) {
		t.Fatalf("stored range = %+v", stored.Range)
	}
	for _, d := range stored.Range.Days() {
		day, err := f.calendar.Day(ctx, "unit-1", d)
		if err != nil {
			t.Fatalf("Day(%v): %v", d, err)
		}
		if day.Status != calendar.StatusBooked || day.BookingID != string(b.ID) {
			t.Fatalf("old day %v not restored: %+v", d, day)
		}
	}
	freed, err := f.calendar.Day(ctx, "unit-1", date(2026, 6, 20))
	if err == nil && (!freed.Free() || freed.BookingID != "") {
		t.Fatalf("abandoned day still held: %+v", freed)
	}
}

func TestCancelComputesRefundAndFreesDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.savePolicy(t, &policy.PropertyPolicy{
		ID:                    "pol-1",
		Type:                  policy.TypeCancellation,
		MinHoursBeforeCheckIn: 48,
		MinDepositPercent:     20,
	})

	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// 30 hours out: inside the window, half refund.
	now := date(2026, 6, 10).Add(-30 * time.Hour)
	outcome, err := f.service.Cancel(ctx, b.ID, "plans changed", now)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if outcome.RefundPercent != 50 {
		t.Fatalf("refund percent = %d, want 50", outcome.RefundPercent)
	}
	if outcome.Refund.Amount != 45_000 || outcome.Penalty.Amount != 45_000 {
		t.Fatalf("refund = %d, penalty = %d", outcome.Refund.Amount, outcome.Penalty.Amount)
	}
	if outcome.Booking.Status != booking.StatusCancelled {
		t.Fatalf("status = %s", outcome.Booking.Status)
	}

	for _, d := range b.Range.Days() {
		day, err := f.calendar.Day(ctx, "unit-1", d)
		if err != nil {
			t.Fatalf("Day(%v): %v", d, err)
		}
		if !day.Free() || day.BookingID != "" {
			t.Fatalf("day %v still held: %+v", d, day)
		}
	}

	// The freed range is bookable again.
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13))); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestCancelWithoutPolicyIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := f.service.Cancel(ctx, b.ID, "plans changed", clock); !errors.Is(err, ErrCancellationDenied) {
		t.Fatalf("expected ErrCancellationDenied, got %v", err)
	}
}

func TestCancelLateDropsToDepositTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.savePolicy(t, &policy.PropertyPolicy{
		ID:                    "pol-1",
		Type:                  policy.TypeCancellation,
		MinHoursBeforeCheckIn: 24,
		MinDepositPercent:     20,
	})
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	now := date(2026, 6, 10).Add(-10 * time.Hour)
	outcome, err := f.service.Cancel(ctx, b.ID, "plans changed", now)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if outcome.RefundPercent != 20 || outcome.Refund.Amount != 18_000 {
		t.Fatalf("outcome = %d%%, %d", outcome.RefundPercent, outcome.Refund.Amount)
	}
}

func TestModifyMovesTheStay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.savePolicy(t, &policy.PropertyPolicy{
		ID:                    "pol-1",
		Type:                  policy.TypeModification,
		MinHoursBeforeCheckIn: 24,
	})
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// Shift by one day: the new range reuses two nights the booking already holds.
	moved, err := f.service.Modify(ctx, b.ID, date(2026, 6, 11), date(2026, 6, 14), clock)
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if !moved.Range.CheckIn.Equal(date(2026, 6, 11)) || !moved.Range.CheckOut.Equal(date(2026, 6, 14)) {
		t.Fatalf("range = %+v", moved.Range)
	}

	freed, err := f.calendar.Day(ctx, "unit-1", date(2026, 6, 10))
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if !freed.Free() || freed.BookingID != "" {
		t.Fatalf("old first night still held: %+v", freed)
	}
	taken, err := f.calendar.Day(ctx, "unit-1", date(2026, 6, 13))
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if taken.Status != calendar.StatusBooked || taken.BookingID != string(b.ID) {
		t.Fatalf("new last night not held: %+v", taken)
	}
}

func TestModifyRejectsRangeHeldByAnotherBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.savePolicy(t, &policy.PropertyPolicy{
		ID:   "pol-1",
		Type: policy.TypeModification,
	})
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 15), date(2026, 6, 18))); err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if _, err := f.service.Modify(ctx, b.ID, date(2026, 6, 14), date(2026, 6, 17), clock); !errors.Is(err, ErrDatesUnavailable) {
		t.Fatalf("expected ErrDatesUnavailable, got %v", err)
	}
}

func TestModifyWithoutPolicyIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := f.service.Modify(ctx, b.ID, date(2026, 6, 11), date(2026, 6, 14), clock); !errors.Is(err, ErrModificationDenied) {
		t.Fatalf("expected ErrModificationDenied, got %v", err)
	}
}

func TestCheckInCheckOutFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	arrived, err := f.service.CheckIn(ctx, b.ID, date(2026, 6, 10).Add(14*time.Hour))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if arrived.Status != booking.StatusCheckedIn {
		t.Fatalf("status = %s", arrived.Status)
	}
	if _, err := f.service.CheckIn(ctx, b.ID, clock); !errors.Is(err, booking.ErrInvalidState) {
		t.Fatalf("double check-in: %v", err)
	}
	left, err := f.service.CheckOut(ctx, b.ID, date(2026, 6, 13).Add(11*time.Hour))
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if left.Status != booking.StatusCompleted {
		t.Fatalf("status = %s", left.Status)
	}
}

func TestGetRefreshesDerivedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	got, err := f.service.Get(ctx, b.ID, date(2026, 6, 11))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != booking.StatusCheckedIn {
		t.Fatalf("status = %s, want %s", got.Status, booking.StatusCheckedIn)
	}
	stored, err := f.bookings.ByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if stored.Status != booking.StatusCheckedIn {
		t.Fatalf("refresh not persisted: %s", stored.Status)
	}
}

func TestGetKeepsEarlyCheckOutCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 12)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := f.service.CheckIn(ctx, b.ID, date(2026, 6, 10).Add(15*time.Hour)); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	// Departure one day before the scheduled check-out.
	if _, err := f.service.CheckOut(ctx, b.ID, date(2026, 6, 11).Add(10*time.Hour)); err != nil {
		t.Fatalf("CheckOut: %v", err)
	}

	got, err := f.service.Get(ctx, b.ID, date(2026, 6, 11).Add(14*time.Hour))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != booking.StatusCompleted {
		t.Fatalf("status = %s, want %s", got.Status, booking.StatusCompleted)
	}
	stored, err := f.bookings.ByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if stored.Status != booking.StatusCompleted {
		t.Fatalf("stored status regressed to %s", stored.Status)
	}
}

func TestBlockDatesRefusesBookedDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13))); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	dr, _ := daterange.New(date(2026, 6, 12), date(2026, 6, 14))
	if err := f.service.BlockDates(ctx, "unit-1", dr, calendar.StatusMaintenance, clock); !errors.Is(err, ErrDatesUnavailable) {
		t.Fatalf("expected ErrDatesUnavailable, got %v", err)
	}
}

func TestBlockAndUnblockDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dr, _ := daterange.New(date(2026, 6, 20), date(2026, 6, 23))

	if err := f.service.BlockDates(ctx, "unit-1", dr, calendar.StatusAvailable, clock); err == nil {
		t.Fatal("Available must not be accepted as a blocking status")
	}
	if err := f.service.BlockDates(ctx, "unit-1", dr, calendar.StatusMaintenance, clock); err != nil {
		t.Fatalf("BlockDates: %v", err)
	}
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 20), date(2026, 6, 23))); !errors.Is(err, ErrDatesUnavailable) {
		t.Fatalf("blocked range admitted: %v", err)
	}
	if err := f.service.UnblockDates(ctx, "unit-1", dr, clock); err != nil {
		t.Fatalf("UnblockDates: %v", err)
	}
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 20), date(2026, 6, 23))); err != nil {
		t.Fatalf("Reserve after unblock: %v", err)
	}
}

func TestUnblockKeepsBookedDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 13)))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	dr, _ := daterange.New(date(2026, 6, 10), date(2026, 6, 13))
	if err := f.service.UnblockDates(ctx, "unit-1", dr, clock); err != nil {
		t.Fatalf("UnblockDates: %v", err)
	}
	day, err := f.calendar.Day(ctx, "unit-1", date(2026, 6, 11))
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if day.Status != calendar.StatusBooked || day.BookingID != string(b.ID) {
		t.Fatalf("booked day was released: %+v", day)
	}
}

func TestAvailableDatesAndFirstRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.Reserve(ctx, reserveParams(date(2026, 6, 10), date(2026, 6, 12))); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	free, err := f.service.AvailableDates(ctx, "unit-1", date(2026, 6, 9), date(2026, 6, 13))
	if err != nil {
		t.Fatalf("AvailableDates: %v", err)
	}
	want := []time.Time{date(2026, 6, 9), date(2026, 6, 12)}
	if len(free) != len(want) {
		t.Fatalf("free = %v", free)
	}
	for i := range want {
		if !free[i].Equal(want[i]) {
			t.Fatalf("free[%d] = %v, want %v", i, free[i], want[i])
		}
	}

	run, found, err := f.service.FirstAvailableRun(ctx, "unit-1", date(2026, 6, 10), 3, 1)
	if err != nil {
		t.Fatalf("FirstAvailableRun: %v", err)
	}
	if !found || !run.CheckIn.Equal(date(2026, 6, 12)) {
		t.Fatalf("run = %+v, found = %v", run, found)
	}
}
