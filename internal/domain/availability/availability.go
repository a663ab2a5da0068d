package availability

import (
	"context"
	"errors"
	"time"

	"staybook/internal/domain/booking"
	"staybook/internal/domain/calendar"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/units"
)

var ErrInvalidSearch = errors.New("availability: nights and horizon must be positive")

// CanBook decides whether a candidate range may be admitted for a unit without
// double-booking. The predicate is pure; callers own the write that follows and
// must run both under the same per-unit boundary.
//
// Two layers are checked. The booking list is the source of truth for
// date-range ownership: a non-cancelled booking overlapping the candidate
// (half-open, so a shared boundary date does not conflict) rejects it. The
// calendar additionally encodes operator-imposed blocks with no booking row:
// any day of the candidate range that exists with a non-Available status
// rejects it too.
func CanBook(ctx context.Context, store calendar.Store, unit units.UnitID, dr daterange.DateRange, existing []*booking.Booking) (bool, error) {
	for _, b := range existing {
		if b == nil || b.UnitID != unit {
			continue
		}
		if b.Status == booking.StatusCancelled {
			continue
		}
		if b.Range.Overlaps(dr) {
			return false, nil
		}
	}
	days, err := store.DaysInRange(ctx, unit, dr)
	if err != nil {
		return false, err
	}
	for _, day := range days {
		if !day.Free() {
			return false, nil
		}
	}
	return true, nil
}

// AvailableDates enumerates the free days of a unit inside [start, end).
// A day is available when no calendar record exists for it or its record is
// Available. The result is eager and ordered.
func AvailableDates(ctx context.Context, store calendar.Store, unit units.UnitID, dr daterange.DateRange) ([]time.Time, error) {
	days, err := store.DaysInRange(ctx, unit, dr)
	if err != nil {
		return nil, err
	}
	taken := make(map[time.Time]calendar.DayStatus, len(days))
	for _, day := range days {
		taken[day.Date] = day.Status
	}
	free := make([]time.Time, 0, dr.Nights())
	for _, d := range dr.Days() {
		if status, ok := taken[d]; ok && !status.Free() {
			continue
		}
		free = append(free, d)
	}
	return free, nil
}

// FirstAvailableRun scans forward day by day from searchFrom for the earliest
// run of nights consecutive free days, giving up after horizonMonths. The
// earliest window always wins because the scan moves forward. The second
// return is false when the horizon is exhausted without a match; that is a
// negative result, not an error.
func FirstAvailableRun(ctx context.Context, store calendar.Store, unit units.UnitID, searchFrom time.Time, nights, horizonMonths int) (daterange.DateRange, bool, error) {
	if nights <= 0 || horizonMonths <= 0 {
		return daterange.DateRange{}, false, ErrInvalidSearch
	}
	start := daterange.Day(searchFrom)
	horizon := start.AddDate(0, horizonMonths, 0)

	run := 0
	for d := start; d.Before(horizon); d = d.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return daterange.DateRange{}, false, ctx.Err()
		default:
		}
		free, err := dayFree(ctx, store, unit, d)
		if err != nil {
			return daterange.DateRange{}, false, err
		}
		if !free {
			run = 0
			continue
		}
		run++
		if run == nights {
			checkOut := d.AddDate(0, 0, 1)
			checkIn := checkOut.AddDate(0, 0, -nights)
			return daterange.DateRange{CheckIn: checkIn, CheckOut: checkOut}, true, nil
		}
	}
	return daterange.DateRange{}, false, nil
}

func dayFree(ctx context.Context, store calendar.Store, unit units.UnitID, d time.Time) (bool, error) {
	day, err := store.Day(ctx, unit, d)
	if errors.Is(err, calendar.ErrDayNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return day.Free(), nil
}
