package daterange

import (
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("daterange: check-out must be after check-in")

// DateRange is a half-open interval [CheckIn, CheckOut): the check-in day is part
// of the stay, the check-out day is not, so adjacent stays can share a boundary
// date without overlapping.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// New validates and normalizes a range to day granularity in UTC.
func New(checkIn, checkOut time.Time) (DateRange, error) {
	in := Day(checkIn)
	out := Day(checkOut)
	if !out.After(in) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{CheckIn: in, CheckOut: out}, nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Nights returns the number of nights covered by the range.
func (dr DateRange) Nights() int {
	return int(dr.CheckOut.Sub(dr.CheckIn).Hours() / 24)
}

// Overlaps reports whether two half-open ranges share at least one night.
// Touching endpoints do not overlap.
func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.CheckIn.Before(other.CheckOut) && dr.CheckOut.After(other.CheckIn)
}

// Contains reports whether the given day falls inside the range.
func (dr DateRange) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(dr.CheckIn) && d.Before(dr.CheckOut)
}

// Days materializes every day of the range in order.
func (dr DateRange) Days() []time.Time {
	days := make([]time.Time, 0, dr.Nights())
	for d := dr.CheckIn; d.Before(dr.CheckOut); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (dr DateRange) IsZero() bool {
	return dr.CheckIn.IsZero() && dr.CheckOut.IsZero()
}
