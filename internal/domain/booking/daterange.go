package booking

import (
	"errors"
	"time"

	"staybook/internal/domain/shared/daterange"
)

var ErrCheckInInPast = errors.New("booking: check-in date is in the past")

// ValidateDateRange rejects stays whose check-in day already passed. Same-day
// check-in is allowed.
func ValidateDateRange(dr daterange.DateRange, now time.Time) error {
	if dr.CheckIn.Before(daterange.Day(now)) {
		return ErrCheckInInPast
	}
	return nil
}
