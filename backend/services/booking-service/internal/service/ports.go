package service

import (
	"context"
	"time"

	"evbooking/backend/services/booking-service/internal/models"
)

// ReservationStore holds slot and booking rows. Implementations translate driver failures into
// ErrNotFound, ErrConflict and ErrStoreUnavailable.
type ReservationStore interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetSlot(ctx context.Context, id string) (*models.Slot, error)
	ListBookingsForSlot(ctx context.Context, slotID string, statuses []models.BookingStatus) ([]models.Booking, error)
	ListBookingsForStation(ctx context.Context, stationID string, statuses []models.BookingStatus) ([]models.Booking, error)
	ListBookingsForUser(ctx context.Context, userID string, limit int) ([]models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error

	// CompareAndSetStatus moves booking id from expected to next and reports whether the row
	// still had the expected status at write time.
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error)

	// ListDue returns up to limit bookings in status whose field is at or before the cutoff and
	// that sort after the cursor, ordered by (field, id).
	ListDue(ctx context.Context, status models.BookingStatus, field models.TimeField, cutoff time.Time, after models.DueCursor, limit int) ([]models.Booking, error)

	// WithSlotLock runs fn while holding exclusive access to slotID. The store passed to fn
	// must be used for every read and write inside the critical section. Calls do not nest.
	WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context, store ReservationStore) error) error
}

// StationAuthorizer answers whether a principal manages a station.
type StationAuthorizer interface {
	IsStationManager(ctx context.Context, principalID, stationID string) (bool, error)
}

// SessionRecorder opens and finalizes charging sessions for bookings.
type SessionRecorder interface {
	OpenSession(ctx context.Context, booking models.Booking, startedAt time.Time) (*models.ChargingSession, error)
	CloseSession(ctx context.Context, booking models.Booking, endedAt time.Time) error
}

// BookingChange describes a booking status transition.
type BookingChange struct {
	Booking models.Booking      `json:"booking"`
	From    models.BookingStatus `json:"from,omitempty"`
	To      models.BookingStatus `json:"to"`
	At      time.Time            `json:"at"`
}

// ChangePublisher receives booking changes after they are committed.
type ChangePublisher interface {
	Publish(ctx context.Context, change BookingChange)
}

// Metrics observes engine outcomes.
type Metrics interface {
	Transition(from, to models.BookingStatus)
	Rejected(op string, err error)
	Sweep(kind string, moved, failed int, duration time.Duration)
	SessionFailure(op string)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

type nopMetrics struct{}

func (nopMetrics) Transition(models.BookingStatus, models.BookingStatus) {}
func (nopMetrics) Rejected(string, error)                                {}
func (nopMetrics) Sweep(string, int, int, time.Duration)                 {}
func (nopMetrics) SessionFailure(string)                                 {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, BookingChange) {}
