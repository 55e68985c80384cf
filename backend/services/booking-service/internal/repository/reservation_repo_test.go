package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

var bookingRowColumns = []string{"id", "user_id", "vehicle_id", "station_id", "slot_id", "start_time", "end_time", "status", "created_at", "updated_at"}

func newMockRepository(t *testing.T) (*ReservationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewReservationRepository(db), mock
}

func lockQuery() string {
	return regexp.QuoteMeta(`SELECT id FROM charging_slots WHERE id = $1 FOR UPDATE`)
}

func TestCompareAndSetStatusSwaps(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("b1", "pending", "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.CompareAndSetStatus(context.Background(), "b1", models.StatusPending, models.StatusAccepted)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCompareAndSetStatusLostRace(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("b1", "pending", "accepted").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.CompareAndSetStatus(context.Background(), "b1", models.StatusPending, models.StatusAccepted)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompareAndSetStatusMissingBooking(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("ghost", "pending", "accepted").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.CompareAndSetStatus(context.Background(), "ghost", models.StatusPending, models.StatusAccepted)
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestCompareAndSetStatusExclusionViolationIsConflict(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("b1", "pending", "accepted").
		WillReturnError(&pgconn.PgError{Code: codeExclusionViolation, ConstraintName: "bookings_no_accepted_overlap"})

	_, err := repo.CompareAndSetStatus(context.Background(), "b1", models.StatusPending, models.StatusAccepted)
	require.ErrorIs(t, err, service.ErrConflict)
}

func TestWithSlotLockMissingSlot(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery()).WithArgs("slot-9").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := repo.WithSlotLock(context.Background(), "slot-9", func(context.Context, service.ReservationStore) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, service.ErrNotFound)
	require.False(t, called)
}

func TestWithSlotLockRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery()).WithArgs("slot-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("slot-1"))
	mock.ExpectRollback()

	err := repo.WithSlotLock(context.Background(), "slot-1", func(context.Context, service.ReservationStore) error {
		return service.ErrConflict
	})
	require.ErrorIs(t, err, service.ErrConflict)
}

func TestWithSlotLockKeepsConflictWhenRollbackFails(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery()).WithArgs("slot-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("slot-1"))
	mock.ExpectRollback().WillReturnError(errors.New("conn busy"))

	err := repo.WithSlotLock(context.Background(), "slot-1", func(context.Context, service.ReservationStore) error {
		return service.ErrConflict
	})
	require.ErrorIs(t, err, service.ErrConflict)
	require.NotErrorIs(t, err, service.ErrStoreUnavailable)
}

func TestWithSlotLockCommitsAndBindsTransaction(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery()).WithArgs("slot-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("slot-1"))
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("b1", "pending", "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(lockQuery()).WithArgs("slot-1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("slot-1"))
	mock.ExpectCommit()

	err := repo.WithSlotLock(context.Background(), "slot-1", func(ctx context.Context, store service.ReservationStore) error {
		bound, ok := store.(*ReservationRepository)
		require.True(t, ok)
		require.NotNil(t, bound.tx)

		swapped, err := store.CompareAndSetStatus(ctx, "b1", models.StatusPending, models.StatusAccepted)
		require.NoError(t, err)
		require.True(t, swapped)

		// Re-entering on the bound repository relocks inside the same transaction.
		return store.WithSlotLock(ctx, "slot-1", func(context.Context, service.ReservationStore) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestListDueSelectsColumnAndCursor(t *testing.T) {
	cutoff := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	start := cutoff.Add(-time.Hour)
	row := []driver.Value{"b1", "driver-1", nil, "station-1", "slot-1", start, cutoff, "accepted", start, start}

	t.Run("start time from the beginning", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(`WHERE status = \$1 AND start_time <= \$2\s+ORDER BY start_time, id\s+LIMIT \$3`).
			WithArgs("accepted", cutoff, 2).
			WillReturnRows(sqlmock.NewRows(bookingRowColumns).AddRow(row...))

		due, err := repo.ListDue(context.Background(), models.StatusAccepted, models.FieldStartTime, cutoff, models.DueCursor{}, 2)
		require.NoError(t, err)
		require.Len(t, due, 1)
		require.Equal(t, "b1", due[0].ID)
		require.Empty(t, due[0].VehicleID)
		require.Equal(t, models.StatusAccepted, due[0].Status)
	})

	t.Run("end time after cursor", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		after := models.DueCursor{At: start, ID: "b0"}
		mock.ExpectQuery(`WHERE status = \$1 AND end_time <= \$2 AND \(end_time, id\) > \(\$4, \$5\)\s+ORDER BY end_time, id`).
			WithArgs("active", cutoff, 2, start, "b0").
			WillReturnRows(sqlmock.NewRows(bookingRowColumns))

		due, err := repo.ListDue(context.Background(), models.StatusActive, models.FieldEndTime, cutoff, after, 2)
		require.NoError(t, err)
		require.Empty(t, due)
	})

	t.Run("unknown field", func(t *testing.T) {
		repo, _ := newMockRepository(t)
		_, err := repo.ListDue(context.Background(), models.StatusActive, models.TimeField("created_at"), cutoff, models.DueCursor{}, 2)
		require.ErrorIs(t, err, service.ErrValidation)
	})
}

func TestGetBookingNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBooking(context.Background(), "ghost")
	require.ErrorIs(t, err, service.ErrNotFound)
}
