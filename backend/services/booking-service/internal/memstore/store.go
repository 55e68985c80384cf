// Package memstore keeps reservation data in process memory. It backs local runs
// (storage.driver=memory) and the engine tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// Store is a concurrency-safe ReservationStore.
type Store struct {
	mu        sync.RWMutex
	slots     map[string]models.Slot
	bookings  map[string]models.Booking
	managers  map[string]string // station id -> manager principal id
	slotLocks *xsync.Map[string, *sync.Mutex]
	now       func() time.Time
}

var (
	_ service.ReservationStore  = (*Store)(nil)
	_ service.StationAuthorizer = (*Store)(nil)
)

// New returns an empty store. now stamps updated_at; nil means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		slots:     make(map[string]models.Slot),
		bookings:  make(map[string]models.Booking),
		managers:  make(map[string]string),
		slotLocks: xsync.NewMap[string, *sync.Mutex](),
		now:       now,
	}
}

// PutSlot creates or replaces a slot.
func (s *Store) PutSlot(slot models.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = slot
}

// AssignManager makes principalID the manager of stationID.
func (s *Store) AssignManager(stationID, principalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.managers[stationID] = principalID
}

// IsStationManager implements service.StationAuthorizer.
func (s *Store) IsStationManager(ctx context.Context, principalID, stationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	manager, ok := s.managers[stationID]
	return ok && manager == principalID, nil
}

// GetBooking returns a copy of the booking.
func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", service.ErrNotFound, id)
	}
	return &b, nil
}

// GetSlot returns a copy of the slot.
func (s *Store) GetSlot(ctx context.Context, id string) (*models.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: slot %s", service.ErrNotFound, id)
	}
	return &slot, nil
}

// ListBookingsForSlot returns the slot's bookings in the given statuses ordered by start time.
func (s *Store) ListBookingsForSlot(ctx context.Context, slotID string, statuses []models.BookingStatus) ([]models.Booking, error) {
	return s.filter(ctx, func(b models.Booking) bool {
		return b.SlotID == slotID && hasStatus(statuses, b.Status)
	}, byStart, 0)
}

// ListBookingsForStation returns the station's bookings in the given statuses ordered by start time.
func (s *Store) ListBookingsForStation(ctx context.Context, stationID string, statuses []models.BookingStatus) ([]models.Booking, error) {
	return s.filter(ctx, func(b models.Booking) bool {
		return b.StationID == stationID && hasStatus(statuses, b.Status)
	}, byStart, 0)
}

// ListBookingsForUser returns the user's newest bookings first.
func (s *Store) ListBookingsForUser(ctx context.Context, userID string, limit int) ([]models.Booking, error) {
	return s.filter(ctx, func(b models.Booking) bool {
		return b.UserID == userID
	}, func(a, b models.Booking) bool { return a.StartTime.After(b.StartTime) }, limit)
}

// ListDue returns bookings in status whose field is at or before cutoff and past the cursor,
// ordered by (field, id).
func (s *Store) ListDue(ctx context.Context, status models.BookingStatus, field models.TimeField, cutoff time.Time, after models.DueCursor, limit int) ([]models.Booking, error) {
	return s.filter(ctx, func(b models.Booking) bool {
		return b.Status == status && !field.Of(b).After(cutoff) && after.Past(field, b)
	}, func(a, b models.Booking) bool {
		ta, tb := field.Of(a), field.Of(b)
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.ID < b.ID
	}, limit)
}

// InsertBooking stores a new booking. Duplicate ids are a conflict.
func (s *Store) InsertBooking(ctx context.Context, booking *models.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[booking.ID]; exists {
		return fmt.Errorf("%w: booking %s already exists", service.ErrConflict, booking.ID)
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = s.now()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}
	s.bookings[booking.ID] = *booking
	return nil
}

// CompareAndSetStatus implements the conditional status write.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, fmt.Errorf("%w: booking %s", service.ErrNotFound, id)
	}
	if b.Status != expected {
		return false, nil
	}
	b.Status = next
	b.UpdatedAt = s.now()
	s.bookings[id] = b
	return true, nil
}

// WithSlotLock serializes fn against other critical sections on the same slot.
func (s *Store) WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context, store service.ReservationStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, _ := s.slotLocks.LoadOrStore(slotID, &sync.Mutex{})
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, s)
}

func (s *Store) filter(ctx context.Context, keep func(models.Booking) bool, less func(a, b models.Booking) bool, limit int) ([]models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.Booking, 0)
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func byStart(a, b models.Booking) bool { return a.StartTime.Before(b.StartTime) }

func hasStatus(statuses []models.BookingStatus, status models.BookingStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
