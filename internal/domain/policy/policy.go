package policy

import (
	"context"
	"errors"
	"time"

	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
)

var (
	ErrDuplicatePolicy = errors.New("policy: active policy already exists for property and type")
	ErrPolicyNotFound  = errors.New("policy: not found")
	ErrInvalidPercent  = errors.New("policy: deposit percentage must be between 0 and 100")
)

// Type names the aspect of the booking lifecycle a property policy governs.
type Type string

const (
	TypeCancellation Type = "CANCELLATION"
	TypePayment      Type = "PAYMENT"
	TypeCheckIn      Type = "CHECK_IN"
	TypeModification Type = "MODIFICATION"
	TypeChildren     Type = "CHILDREN"
	TypePets         Type = "PETS"
)

// DefaultDepositPercent applies when a property has no payment policy on file.
const DefaultDepositPercent = 20

// PropertyPolicy is one rule record per (property, type). Owned and edited by
// property owners; read-only to this engine.
type PropertyPolicy struct {
	ID                     string
	PropertyID             units.PropertyID
	Type                   Type
	CancellationWindowDays int
	MinHoursBeforeCheckIn  int
	RequireFullPrepayment  bool
	MinDepositPercent      int
	Rules                  string
	Active                 bool
	UpdatedAt              time.Time
}

// Validate checks record invariants before persistence.
func (p PropertyPolicy) Validate() error {
	if p.PropertyID == "" {
		return errors.New("policy: property id required")
	}
	if p.Type == "" {
		return errors.New("policy: type required")
	}
	if p.MinDepositPercent < 0 || p.MinDepositPercent > 100 {
		return ErrInvalidPercent
	}
	return nil
}

// Repository reads and writes property policies. Save must reject a second
// active record for the same (property, type); the engine never resolves
// duplicates at read time.
type Repository interface {
	ByPropertyAndType(ctx context.Context, property units.PropertyID, t Type) (*PropertyPolicy, error)
	Save(ctx context.Context, p *PropertyPolicy) error
}

// PaymentRequirements evaluates the payment policy at booking-creation time.
// A missing policy defaults to no full prepayment and a 20% deposit.
func PaymentRequirements(p *PropertyPolicy) (requireFull bool, depositPercent int) {
	if p == nil {
		return false, DefaultDepositPercent
	}
	return p.RequireFullPrepayment, money.ClampPercent(p.MinDepositPercent)
}

// CanCancel decides cancellation eligibility relative to now. A missing policy
// fails closed: cancellation is never permitted without an explicit rule.
// A policy demanding full prepayment with a zero cancellation window is the
// strict non-refundable shape and denies unconditionally. Otherwise the gate is
// the cancellation window alone; how late the guest is only affects the refund
// tier, there is no separate "too late" rule. A zero window trivially permits.
func CanCancel(p *PropertyPolicy, checkIn, now time.Time) bool {
	if p == nil {
		return false
	}
	if p.RequireFullPrepayment && p.CancellationWindowDays == 0 {
		return false
	}
	return hoursBeforeCheckIn(checkIn, now) >= float64(p.CancellationWindowDays*24)
}

// RefundPercent computes the refund entitlement tier from hours until
// check-in. The three bands are fixed business policy:
//
//	h >= window       -> 100 (free cancellation)
//	window/2 <= h < w -> 50
//	h < window/2      -> the minimum deposit percentage
//
// A missing policy yields no refund.
func RefundPercent(p *PropertyPolicy, checkIn, now time.Time) int {
	if p == nil {
		return 0
	}
	h := hoursBeforeCheckIn(checkIn, now)
	r := float64(p.MinHoursBeforeCheckIn)
	switch {
	case h >= r:
		return 100
	case h >= r/2:
		return 50
	default:
		return money.ClampPercent(p.MinDepositPercent)
	}
}

// CanModify mirrors CanCancel's fail-closed shape for modification requests.
func CanModify(p *PropertyPolicy, checkIn, now time.Time) bool {
	if p == nil {
		return false
	}
	return hoursBeforeCheckIn(checkIn, now) >= float64(p.MinHoursBeforeCheckIn)
}

// hoursBeforeCheckIn may be negative once the stay has started.
func hoursBeforeCheckIn(checkIn, now time.Time) float64 {
	return checkIn.Sub(now).Hours()
}
