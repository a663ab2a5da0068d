package reservation

import (
	"context"

	"staybook/internal/domain/booking"
)

// IdempotencyStore remembers the booking a creation key produced so retried
// requests return the original reservation instead of double-booking.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (booking.BookingID, bool, error)
	Save(ctx context.Context, key string, id booking.BookingID) error
}

// ReserveIdempotent resolves the key before admitting a new booking. A replay
// returns the stored booking with replayed=true and performs no writes.
func (s *Service) ReserveIdempotent(ctx context.Context, store IdempotencyStore, key string, params ReserveParams) (b *booking.Booking, replayed bool, err error) {
	if store == nil || key == "" {
		b, err = s.Reserve(ctx, params)
		return b, false, err
	}
	if id, ok, err := store.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		b, err := s.Bookings.ByID(ctx, id)
		return b, true, err
	}
	b, err = s.Reserve(ctx, params)
	if err != nil {
		return nil, false, err
	}
	if err := store.Save(ctx, key, b.ID); err != nil {
		return nil, false, err
	}
	return b, false, nil
}
