package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainbooking "staybook/internal/domain/booking"
	domaincalendar "staybook/internal/domain/calendar"
	domainpolicy "staybook/internal/domain/policy"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendarStoreKeepsOneRecordPerDay(t *testing.T) {
	store := NewCalendarStore()
	ctx := context.Background()

	day := domaincalendar.DaySchedule{
		UnitID: "unit-1",
		Date:   time.Date(2026, 6, 10, 15, 30, 0, 0, time.FixedZone("UTC+3", 3*3600)),
		Status: domaincalendar.StatusBlocked,
	}
	if err := store.UpsertDay(ctx, day); err != nil {
		t.Fatalf("UpsertDay: %v", err)
	}
	day.Status = domaincalendar.StatusAvailable
	if err := store.UpsertDay(ctx, day); err != nil {
		t.Fatalf("UpsertDay: %v", err)
	}

	got, err := store.Day(ctx, "unit-1", date(2026, 6, 10))
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if got.Status != domaincalendar.StatusAvailable {
		t.Fatalf("status = %s, the second upsert must win", got.Status)
	}

	dr, _ := daterange.New(date(2026, 6, 9), date(2026, 6, 12))
	days, err := store.DaysInRange(ctx, "unit-1", dr)
	if err != nil {
		t.Fatalf("DaysInRange: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("records = %d, want 1", len(days))
	}
}

func TestCalendarStoreValidatesRecords(t *testing.T) {
	store := NewCalendarStore()
	err := store.UpsertDay(context.Background(), domaincalendar.DaySchedule{Date: date(2026, 6, 10)})
	if !errors.Is(err, domaincalendar.ErrUnitMissing) {
		t.Fatalf("expected ErrUnitMissing, got %v", err)
	}
	if _, err := store.Day(context.Background(), "unit-1", date(2026, 6, 10)); !errors.Is(err, domaincalendar.ErrDayNotFound) {
		t.Fatalf("expected ErrDayNotFound, got %v", err)
	}
}

func testBooking(t *testing.T, id string, status domainbooking.Status, in, out time.Time) *domainbooking.Booking {
	t.Helper()
	dr, err := daterange.New(in, out)
	if err != nil {
		t.Fatalf("daterange: %v", err)
	}
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:      domainbooking.BookingID(id),
		UnitID:  "unit-1",
		GuestID: "guest-1",
		Range:   dr,
		Guests:  2,
		Total:   money.Must(90_000, "RUB"),
		Now:     in.AddDate(0, -1, 0),
	})
	if err != nil {
		t.Fatalf("NewBooking: %v", err)
	}
	b.Status = status
	return b
}

func TestBookingRepositoryActiveByUnit(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()

	later := testBooking(t, "bk-2", domainbooking.StatusConfirmed, date(2026, 7, 1), date(2026, 7, 5))
	earlier := testBooking(t, "bk-1", domainbooking.StatusCheckedIn, date(2026, 6, 10), date(2026, 6, 15))
	cancelled := testBooking(t, "bk-3", domainbooking.StatusCancelled, date(2026, 6, 20), date(2026, 6, 25))
	for _, b := range []*domainbooking.Booking{later, earlier, cancelled} {
		if err := repo.Save(ctx, b); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	active, err := repo.ActiveByUnit(ctx, "unit-1")
	if err != nil {
		t.Fatalf("ActiveByUnit: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	if active[0].ID != "bk-1" || active[1].ID != "bk-2" {
		t.Fatalf("order = %s, %s", active[0].ID, active[1].ID)
	}
}

func TestBookingRepositoryReturnsCopies(t *testing.T) {
	repo := NewBookingRepository()
	ctx := context.Background()
	b := testBooking(t, "bk-1", domainbooking.StatusConfirmed, date(2026, 6, 10), date(2026, 6, 15))
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.ByID(ctx, "bk-1")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	got.Status = domainbooking.StatusCancelled

	again, err := repo.ByID(ctx, "bk-1")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if again.Status != domainbooking.StatusConfirmed {
		t.Fatal("mutation of a returned booking leaked into the store")
	}
}

func TestBookingRepositoryNotFound(t *testing.T) {
	repo := NewBookingRepository()
	if _, err := repo.ByID(context.Background(), "missing"); !errors.Is(err, domainbooking.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestPolicyRepositoryRejectsSecondActivePolicy(t *testing.T) {
	repo := NewPolicyRepository()
	ctx := context.Background()

	first := &domainpolicy.PropertyPolicy{
		ID:         "pol-1",
		PropertyID: "prop-1",
		Type:       domainpolicy.TypeCancellation,
		Active:     true,
	}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := &domainpolicy.PropertyPolicy{
		ID:         "pol-2",
		PropertyID: "prop-1",
		Type:       domainpolicy.TypeCancellation,
		Active:     true,
	}
	if err := repo.Save(ctx, second); !errors.Is(err, domainpolicy.ErrDuplicatePolicy) {
		t.Fatalf("expected ErrDuplicatePolicy, got %v", err)
	}

	// Updating the same record in place is allowed.
	first.CancellationWindowDays = 3
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("update Save: %v", err)
	}
	got, err := repo.ByPropertyAndType(ctx, "prop-1", domainpolicy.TypeCancellation)
	if err != nil {
		t.Fatalf("ByPropertyAndType: %v", err)
	}
	if got.CancellationWindowDays != 3 {
		t.Fatalf("window = %d, want 3", got.CancellationWindowDays)
	}
}

func TestPolicyRepositoryIgnoresInactive(t *testing.T) {
	repo := NewPolicyRepository()
	ctx := context.Background()
	p := &domainpolicy.PropertyPolicy{
		ID:         "pol-1",
		PropertyID: "prop-1",
		Type:       domainpolicy.TypeCancellation,
		Active:     false,
	}
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := repo.ByPropertyAndType(ctx, "prop-1", domainpolicy.TypeCancellation); !errors.Is(err, domainpolicy.ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestUnitCatalog(t *testing.T) {
	catalog := NewUnitCatalog()
	catalog.Put(&units.Unit{ID: "unit-1", PropertyID: "prop-1", BaseRate: money.Must(30_000, "RUB")})

	u, err := catalog.ByID(context.Background(), "unit-1")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if u.BaseRate.Amount != 30_000 {
		t.Fatalf("rate = %d", u.BaseRate.Amount)
	}
	if _, err := catalog.ByID(context.Background(), "missing"); !errors.Is(err, units.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}
