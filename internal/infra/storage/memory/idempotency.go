package memory

import (
	"context"
	"sync"

	"staybook/internal/domain/booking"
)

// IdempotencyStore maps creation keys to booking ids in memory.
type IdempotencyStore struct {
	mu    sync.RWMutex
	items map[string]booking.BookingID
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{items: make(map[string]booking.BookingID)}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (booking.BookingID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.items[key]
	return id, ok, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, key string, id booking.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = id
	return nil
}
