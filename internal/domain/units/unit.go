package units

import (
	"context"
	"errors"

	"staybook/internal/domain/shared/money"
)

var ErrUnitNotFound = errors.New("units: not found")

type UnitID string

type PropertyID string

// PricingMethod is the granularity the unit is priced at. The engine assumes
// nightly granularity throughout; hourly units exist in the catalog but are
// quoted per calendar day here as well.
type PricingMethod string

const (
	PricePerNight PricingMethod = "NIGHTLY"
	PricePerHour  PricingMethod = "HOURLY"
)

// Unit is the slice of the catalog record this engine needs. The catalog
// subsystem owns the full entity; we only read it by identifier.
type Unit struct {
	ID            UnitID
	PropertyID    PropertyID
	BaseRate      money.Money
	PricingMethod PricingMethod
	Cancellable   bool
}

// Catalog resolves units by identifier. Implemented by the catalog subsystem;
// the in-memory variant exists for wiring and tests.
type Catalog interface {
	ByID(ctx context.Context, id UnitID) (*Unit, error)
}
