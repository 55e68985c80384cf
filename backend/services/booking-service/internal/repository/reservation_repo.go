package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	libdb "evbooking/backend/libs/db"
	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const bookingColumns = `id, user_id, vehicle_id, station_id, slot_id, start_time, end_time, status, created_at, updated_at`

// ReservationRepository is the Postgres ReservationStore. Inside WithSlotLock it is bound to
// the locking transaction.
type ReservationRepository struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

var _ service.ReservationStore = (*ReservationRepository)(nil)

// NewReservationRepository returns repository.
func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db, q: db}
}

// GetBooking loads a booking by id.
func (r *ReservationRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", service.ErrNotFound, id)
		}
		return nil, mapError(err)
	}
	return b, nil
}

// GetSlot loads a charging slot by id.
func (r *ReservationRepository) GetSlot(ctx context.Context, id string) (*models.Slot, error) {
	const query = `
		SELECT id, station_id, connector_type, max_power_kw, is_available, created_at, updated_at
		FROM charging_slots
		WHERE id = $1
	`
	var s models.Slot
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.StationID,
		&s.ConnectorType,
		&s.MaxPowerKW,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: slot %s", service.ErrNotFound, id)
		}
		return nil, mapError(err)
	}
	return &s, nil
}

// ListBookingsForSlot returns the slot's bookings in statuses ordered by start time.
func (r *ReservationRepository) ListBookingsForSlot(ctx context.Context, slotID string, statuses []models.BookingStatus) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE slot_id = $1 AND status = ANY($2)
		ORDER BY start_time`
	return r.list(ctx, query, slotID, statusArgs(statuses))
}

// ListBookingsForStation returns the station's bookings in statuses ordered by start time.
func (r *ReservationRepository) ListBookingsForStation(ctx context.Context, stationID string, statuses []models.BookingStatus) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE station_id = $1 AND status = ANY($2)
		ORDER BY start_time`
	return r.list(ctx, query, stationID, statusArgs(statuses))
}

// ListBookingsForUser returns last N bookings for user.
func (r *ReservationRepository) ListBookingsForUser(ctx context.Context, userID string, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

// ListDue returns bookings in status whose field is at or before cutoff, ordered by (field, id)
// and resuming after the cursor.
func (r *ReservationRepository) ListDue(ctx context.Context, status models.BookingStatus, field models.TimeField, cutoff time.Time, after models.DueCursor, limit int) ([]models.Booking, error) {
	var column string
	switch field {
	case models.FieldStartTime:
		column = "start_time"
	case models.FieldEndTime:
		column = "end_time"
	default:
		return nil, fmt.Errorf("%w: unknown time field %q", service.ErrValidation, field)
	}
	if limit <= 0 {
		limit = 500
	}

	if after.IsZero() {
		query := fmt.Sprintf(`SELECT %s
			FROM bookings
			WHERE status = $1 AND %s <= $2
			ORDER BY %s, id
			LIMIT $3`, bookingColumns, column, column)
		return r.list(ctx, query, string(status), cutoff, limit)
	}

	query := fmt.Sprintf(`SELECT %s
		FROM bookings
		WHERE status = $1 AND %s <= $2 AND (%s, id) > ($4, $5)
		ORDER BY %s, id
		LIMIT $3`, bookingColumns, column, column, column)
	return r.list(ctx, query, string(status), cutoff, limit, after.At, after.ID)
}

// InsertBooking persists a new booking.
func (r *ReservationRepository) InsertBooking(ctx context.Context, b *models.Booking) error {
	const query = `
		INSERT INTO bookings (id, user_id, vehicle_id, station_id, slot_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	err := r.q.QueryRowContext(ctx, query,
		b.ID,
		b.UserID,
		b.VehicleID,
		b.StationID,
		b.SlotID,
		b.StartTime,
		b.EndTime,
		string(b.Status),
		b.CreatedAt,
		b.UpdatedAt,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return mapError(err)
}

// CompareAndSetStatus moves booking id from expected to next in a single conditional UPDATE.
func (r *ReservationRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error) {
	const query = `
		UPDATE bookings
		SET status = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := r.q.ExecContext(ctx, query, id, string(expected), string(next))
	if err != nil {
		return false, mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, mapError(err)
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	if !exists {
		return false, fmt.Errorf("%w: booking %s", service.ErrNotFound, id)
	}
	return false, nil
}

// WithSlotLock runs fn in a transaction holding the slot row lock. Concurrent callers on the
// same slot queue on SELECT ... FOR UPDATE; the bookings_no_accepted_overlap exclusion
// constraint backs the lock at commit.
func (r *ReservationRepository) WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context, store service.ReservationStore) error) error {
	if r.tx != nil {
		if err := lockSlot(ctx, r.tx, slotID); err != nil {
			return err
		}
		return fn(ctx, r)
	}

	err := libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockSlot(ctx, tx, slotID); err != nil {
			return err
		}
		return fn(ctx, &ReservationRepository{db: r.db, q: tx, tx: tx})
	})
	return mapError(err)
}

func lockSlot(ctx context.Context, tx *sql.Tx, slotID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM charging_slots WHERE id = $1 FOR UPDATE`, slotID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: slot %s", service.ErrNotFound, slotID)
		}
		return mapError(err)
	}
	return nil
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, mapError(err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return bookings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b         models.Booking
		vehicleID sql.NullString
		status    string
	)
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&vehicleID,
		&b.StationID,
		&b.SlotID,
		&b.StartTime,
		&b.EndTime,
		&status,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.VehicleID = vehicleID.String
	b.Status = models.BookingStatus(status)
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return &b, nil
}

func statusArgs(statuses []models.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
