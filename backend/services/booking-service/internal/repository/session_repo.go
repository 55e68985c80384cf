package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// PriceSource supplies the energy price used to cost finalized sessions.
type PriceSource interface {
	PricePerKWh(ctx context.Context) (float64, error)
}

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db     *sql.DB
	prices PriceSource
}

var _ service.SessionRecorder = (*SessionRepository)(nil)

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB, prices PriceSource) *SessionRepository {
	return &SessionRepository{db: db, prices: prices}
}

// OpenSession creates the booking's session. A second call returns the existing row.
func (r *SessionRepository) OpenSession(ctx context.Context, booking models.Booking, startedAt time.Time) (*models.ChargingSession, error) {
	const query = `
		INSERT INTO charging_sessions (id, booking_id, user_id, vehicle_id, station_id, slot_id, status, start_time, energy_kwh, cost, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, 0, 0, NOW(), NOW())
		ON CONFLICT (booking_id) DO UPDATE SET
			updated_at = charging_sessions.updated_at
		RETURNING id, status, start_time, energy_kwh, cost, created_at, updated_at
	`
	session := &models.ChargingSession{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		VehicleID: booking.VehicleID,
		StationID: booking.StationID,
		SlotID:    booking.SlotID,
	}
	err := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		booking.ID,
		booking.UserID,
		booking.VehicleID,
		booking.StationID,
		booking.SlotID,
		models.SessionStatusActive,
		startedAt,
	).Scan(
		&session.ID,
		&session.Status,
		&session.StartTime,
		&session.EnergyKWh,
		&session.Cost,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return session, nil
}

// CloseSession finalizes the booking's active session and prices the recorded energy.
func (r *SessionRepository) CloseSession(ctx context.Context, booking models.Booking, endedAt time.Time) error {
	var price float64
	if r.prices != nil {
		p, err := r.prices.PricePerKWh(ctx)
		if err != nil {
			return fmt.Errorf("%w: tariff lookup: %v", service.ErrStoreUnavailable, err)
		}
		price = p
	}

	const query = `
		UPDATE charging_sessions
		SET end_time = $2,
		    status = $3,
		    cost = energy_kwh * $4,
		    updated_at = NOW()
		WHERE booking_id = $1 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, booking.ID, endedAt, models.SessionStatusCompleted, price, models.SessionStatusActive)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: no active session for booking %s", service.ErrNotFound, booking.ID)
	}
	return nil
}

// ActiveSession returns the booking's session while it is still open.
func (r *SessionRepository) ActiveSession(ctx context.Context, bookingID string) (*models.ChargingSession, error) {
	const query = `
		SELECT id, booking_id, user_id, vehicle_id, station_id, slot_id, status, start_time, energy_kwh, cost, created_at, updated_at
		FROM charging_sessions
		WHERE booking_id = $1 AND status = $2
	`
	var (
		s         models.ChargingSession
		vehicleID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, bookingID, models.SessionStatusActive).Scan(
		&s.ID,
		&s.BookingID,
		&s.UserID,
		&vehicleID,
		&s.StationID,
		&s.SlotID,
		&s.Status,
		&s.StartTime,
		&s.EnergyKWh,
		&s.Cost,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active session for booking %s", service.ErrNotFound, bookingID)
		}
		return nil, mapError(err)
	}
	s.VehicleID = vehicleID.String
	return &s, nil
}
