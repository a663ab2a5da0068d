package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainbooking "staybook/internal/domain/booking"
	domaincalendar "staybook/internal/domain/calendar"
	domainpolicy "staybook/internal/domain/policy"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/events"
	"staybook/internal/domain/units"
)

type dayKey struct {
	unit units.UnitID
	date time.Time
}

// CalendarStore keeps day schedules in memory keyed (unit, date). UpsertDay is
// atomic under the store mutex, so the one-record-per-key invariant holds by
// construction.
type CalendarStore struct {
	mu   sync.RWMutex
	days map[dayKey]domaincalendar.DaySchedule
}

func NewCalendarStore() *CalendarStore {
	return &CalendarStore{days: make(map[dayKey]domaincalendar.DaySchedule)}
}

func (s *CalendarStore) Day(ctx context.Context, unit units.UnitID, date time.Time) (*domaincalendar.DaySchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day, ok := s.days[dayKey{unit: unit, date: daterange.Day(date)}]
	if !ok {
		return nil, domaincalendar.ErrDayNotFound
	}
	return &day, nil
}

func (s *CalendarStore) UpsertDay(ctx context.Context, day domaincalendar.DaySchedule) error {
	if err := day.Validate(); err != nil {
		return err
	}
	day.NormalizeDate()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[dayKey{unit: day.UnitID, date: day.Date}] = day
	return nil
}

func (s *CalendarStore) DaysInRange(ctx context.Context, unit units.UnitID, dr daterange.DateRange) ([]domaincalendar.DaySchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domaincalendar.DaySchedule, 0, dr.Nights())
	for d := dr.CheckIn; d.Before(dr.CheckOut); d = d.AddDate(0, 0, 1) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		if day, ok := s.days[dayKey{unit: unit, date: d}]; ok {
			out = append(out, day)
		}
	}
	return out, nil
}

var _ domaincalendar.Store = (*CalendarStore)(nil)

// BookingRepository stores bookings in memory. Not suitable for production.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[b.ID] = cloneBooking(b)
	return nil
}

func (r *BookingRepository) ActiveByUnit(ctx context.Context, unit units.UnitID) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if b.UnitID != unit || b.Status == domainbooking.StatusCancelled {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.CheckIn.Before(out[j].Range.CheckIn) })
	return out, nil
}

func (r *BookingRepository) ListByGuest(ctx context.Context, guestID string) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if b.GuestID == guestID {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.Before(out[j].BookedAt) })
	return out, nil
}

func cloneBooking(b *domainbooking.Booking) *domainbooking.Booking {
	clone := *b
	clone.EventRecorder = events.EventRecorder{}
	if b.ActualCheckIn != nil {
		t := *b.ActualCheckIn
		clone.ActualCheckIn = &t
	}
	if b.ActualCheckOut != nil {
		t := *b.ActualCheckOut
		clone.ActualCheckOut = &t
	}
	return &clone
}

var _ domainbooking.Repository = (*BookingRepository)(nil)

type policyKey struct {
	property units.PropertyID
	typ      domainpolicy.Type
}

// PolicyRepository stores property policies in memory. The one-active-row
// invariant per (property, type) is enforced on Save, never resolved on read.
type PolicyRepository struct {
	mu    sync.RWMutex
	items map[policyKey]*domainpolicy.PropertyPolicy
}

func NewPolicyRepository() *PolicyRepository {
	return &PolicyRepository{items: make(map[policyKey]*domainpolicy.PropertyPolicy)}
}

func (r *PolicyRepository) ByPropertyAndType(ctx context.Context, property units.PropertyID, t domainpolicy.Type) (*domainpolicy.PropertyPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[policyKey{property: property, typ: t}]
	if !ok || !p.Active {
		return nil, domainpolicy.ErrPolicyNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *PolicyRepository) Save(ctx context.Context, p *domainpolicy.PropertyPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := policyKey{property: p.PropertyID, typ: p.Type}
	if existing, ok := r.items[key]; ok && existing.Active && p.Active && existing.ID != p.ID {
		return domainpolicy.ErrDuplicatePolicy
	}
	clone := *p
	r.items[key] = &clone
	return nil
}

var _ domainpolicy.Repository = (*PolicyRepository)(nil)

// UnitCatalog is the in-memory stand-in for the external catalog subsystem.
type UnitCatalog struct {
	mu    sync.RWMutex
	items map[units.UnitID]*units.Unit
}

func NewUnitCatalog() *UnitCatalog {
	return &UnitCatalog{items: make(map[units.UnitID]*units.Unit)}
}

func (c *UnitCatalog) ByID(ctx context.Context, id units.UnitID) (*units.Unit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.items[id]
	if !ok {
		return nil, units.ErrUnitNotFound
	}
	clone := *u
	return &clone, nil
}

func (c *UnitCatalog) Put(u *units.Unit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *u
	c.items[u.ID] = &clone
}

var _ units.Catalog = (*UnitCatalog)(nil)
