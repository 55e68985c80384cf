package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// SessionLog records charging sessions in memory, keyed by booking id.
type SessionLog struct {
	mu       sync.Mutex
	sessions map[string]models.ChargingSession
}

var _ service.SessionRecorder = (*SessionLog)(nil)

// NewSessionLog returns an empty session log.
func NewSessionLog() *SessionLog {
	return &SessionLog{sessions: make(map[string]models.ChargingSession)}
}

// OpenSession starts a session for booking. Opening twice returns the existing session.
func (l *SessionLog) OpenSession(_ context.Context, booking models.Booking, startedAt time.Time) (*models.ChargingSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.sessions[booking.ID]; ok {
		return &existing, nil
	}
	session := models.ChargingSession{
		ID:        uuid.NewString(),
		BookingID: booking.ID,
		UserID:    booking.UserID,
		VehicleID: booking.VehicleID,
		StationID: booking.StationID,
		SlotID:    booking.SlotID,
		Status:    models.SessionStatusActive,
		StartTime: startedAt,
		CreatedAt: startedAt,
		UpdatedAt: startedAt,
	}
	l.sessions[booking.ID] = session
	return &session, nil
}

// CloseSession finalizes the booking's session.
func (l *SessionLog) CloseSession(_ context.Context, booking models.Booking, endedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	session, ok := l.sessions[booking.ID]
	if !ok {
		return fmt.Errorf("%w: no session for booking %s", service.ErrNotFound, booking.ID)
	}
	session.Status = models.SessionStatusCompleted
	session.EndTime = &endedAt
	session.UpdatedAt = endedAt
	l.sessions[booking.ID] = session
	return nil
}

// ActiveSession returns the booking's session while it is still open.
func (l *SessionLog) ActiveSession(_ context.Context, bookingID string) (*models.ChargingSession, error) {
	session, ok := l.ForBooking(bookingID)
	if !ok || session.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: no active session for booking %s", service.ErrNotFound, bookingID)
	}
	return &session, nil
}

// ForBooking returns the session opened for bookingID.
func (l *SessionLog) ForBooking(bookingID string) (models.ChargingSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	session, ok := l.sessions[bookingID]
	return session, ok
}
