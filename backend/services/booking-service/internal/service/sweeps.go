package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/models"
)

// Sweep kinds reported to metrics and logs.
const (
	SweepActivation = "activation"
	SweepCompletion = "completion"
)

type sweepPass struct {
	kind  string
	from  models.BookingStatus
	event models.BookingEvent
	field models.TimeField
}

var (
	activationSweep = sweepPass{kind: SweepActivation, from: models.StatusAccepted, event: models.EventActivate, field: models.FieldStartTime}
	completionSweep = sweepPass{kind: SweepCompletion, from: models.StatusActive, event: models.EventComplete, field: models.FieldEndTime}
)

// RunActivationSweep moves accepted bookings whose start time has passed to active and opens
// their charging sessions. It returns the number of bookings moved.
func (e *BookingEngine) RunActivationSweep(ctx context.Context) (int, error) {
	return e.sweep(ctx, activationSweep)
}

// RunCompletionSweep moves active bookings whose end time has passed to completed and
// finalizes their charging sessions. It returns the number of bookings moved.
func (e *BookingEngine) RunCompletionSweep(ctx context.Context) (int, error) {
	return e.sweep(ctx, completionSweep)
}

// sweep pages through due bookings and moves each with a conditional write. Rows already
// moved by another sweeper are skipped; per-row store errors are logged and counted without
// aborting the batch. Pages resume after the last row seen, so rows that keep failing never
// hide the ones behind them. A failed listing aborts the pass with ErrStoreUnavailable.
func (e *BookingEngine) sweep(ctx context.Context, pass sweepPass) (int, error) {
	started := time.Now()
	to, _ := pass.from.TransitionFor(pass.event)
	now := e.clock.Now()

	moved, failed := 0, 0
	defer func() {
		e.metrics.Sweep(pass.kind, moved, failed, time.Since(started))
	}()

	var cursor models.DueCursor
	for {
		due, err := e.listDue(ctx, pass, now, cursor)
		if err != nil {
			return moved, classify(err)
		}

		for _, booking := range due {
			if err := ctx.Err(); err != nil {
				return moved, err
			}

			ok, err := e.casWithTimeout(ctx, booking.ID, pass.from, to)
			if err != nil {
				failed++
				e.logger.Warn("sweep transition failed",
					zap.String("sweep", pass.kind),
					zap.String("booking_id", booking.ID),
					zap.Error(err),
				)
				continue
			}
			if !ok {
				continue
			}

			moved++
			booking.Status = to
			booking.UpdatedAt = now
			e.afterSweepTransition(ctx, pass, booking, now)
			e.committed(ctx, booking, pass.from, to, now)
		}

		if len(due) < e.sweepBatch {
			break
		}
		cursor = models.CursorAfter(pass.field, due[len(due)-1])
	}

	if moved > 0 || failed > 0 {
		e.logger.Info("sweep finished",
			zap.String("sweep", pass.kind),
			zap.Int("moved", moved),
			zap.Int("failed", failed),
		)
	} else {
		e.logger.Debug("sweep found nothing due", zap.String("sweep", pass.kind))
	}
	return moved, nil
}

func (e *BookingEngine) listDue(ctx context.Context, pass sweepPass, now time.Time, after models.DueCursor) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.ListDue(ctx, pass.from, pass.field, now, after, e.sweepBatch)
}

func (e *BookingEngine) casWithTimeout(ctx context.Context, id string, from, to models.BookingStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	ok, err := e.store.CompareAndSetStatus(ctx, id, from, to)
	return ok, classify(err)
}

// afterSweepTransition keeps charging sessions in step with the booking. Session failures
// never undo the booking transition.
func (e *BookingEngine) afterSweepTransition(ctx context.Context, pass sweepPass, booking models.Booking, now time.Time) {
	if e.sessions == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	switch pass.kind {
	case SweepActivation:
		if _, err := e.sessions.OpenSession(ctx, booking, now); err != nil {
			e.metrics.SessionFailure("open")
			e.logger.Warn("failed to open charging session", zap.String("booking_id", booking.ID), zap.Error(err))
		}
	case SweepCompletion:
		if err := e.sessions.CloseSession(ctx, booking, now); err != nil {
			e.metrics.SessionFailure("close")
			e.logger.Warn("failed to close charging session", zap.String("booking_id", booking.ID), zap.Error(err))
		}
	}
}
