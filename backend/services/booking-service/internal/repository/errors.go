package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"evbooking/backend/services/booking-service/internal/service"
)

// Postgres SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// mapError translates driver failures into the engine's error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		service.ErrValidation,
		service.ErrNotFound,
		service.ErrUnauthorized,
		service.ErrConflict,
		service.ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", service.ErrNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", service.ErrStoreUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeExclusionViolation, codeUniqueViolation:
			return fmt.Errorf("%w: %s (%s)", service.ErrConflict, pgErr.Message, pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", service.ErrConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", service.ErrStoreUnavailable, err)
}
