package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Retrying without changing the input will fail again.
	ErrValidation = errors.New("booking: validation failed")
	// ErrNotFound is returned when a booking or slot does not exist.
	ErrNotFound = errors.New("booking: not found")
	// ErrUnauthorized is returned when the caller may not perform the transition.
	ErrUnauthorized = errors.New("booking: unauthorized")
	// ErrConflict means a state precondition failed; re-fetch and pick another slot or time.
	ErrConflict = errors.New("booking: conflict")
	// ErrStoreUnavailable is a transient infrastructure failure, retryable with backoff.
	ErrStoreUnavailable = errors.New("booking: store unavailable")
)

var taxonomy = []error{ErrValidation, ErrNotFound, ErrUnauthorized, ErrConflict, ErrStoreUnavailable}

// classify keeps classified errors as they are and folds everything else into
// ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out: %v", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
