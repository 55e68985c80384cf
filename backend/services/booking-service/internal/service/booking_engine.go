package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/models"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultListLimit    = 50
	maxListLimit        = 500
)

// requestCheckStatuses extends the blocking set with active bookings, which still occupy
// the slot for the rest of their window.
var requestCheckStatuses = append(append([]models.BookingStatus{}, models.BlockingStatuses...), models.StatusActive)

// EngineDeps groups BookingEngine collaborators. Store and Authorizer are required.
type EngineDeps struct {
	Store        ReservationStore
	Authorizer   StationAuthorizer
	Clock        Clock
	Sessions     SessionRecorder
	Publisher    ChangePublisher
	Metrics      Metrics
	Logger       *zap.Logger
	StoreTimeout time.Duration
	SweepBatch   int
}

// BookingEngine owns every booking status transition.
type BookingEngine struct {
	store        ReservationStore
	authorizer   StationAuthorizer
	clock        Clock
	sessions     SessionRecorder
	publisher    ChangePublisher
	metrics      Metrics
	logger       *zap.Logger
	storeTimeout time.Duration
	sweepBatch   int
	newID        func() string
}

// NewBookingEngine builds the engine, filling optional collaborators with no-op defaults.
func NewBookingEngine(deps EngineDeps) (*BookingEngine, error) {
	if deps.Store == nil {
		return nil, errors.New("booking engine: store is required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("booking engine: authorizer is required")
	}

	e := &BookingEngine{
		store:        deps.Store,
		authorizer:   deps.Authorizer,
		clock:        deps.Clock,
		sessions:     deps.Sessions,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		storeTimeout: deps.StoreTimeout,
		sweepBatch:   deps.SweepBatch,
		newID:        uuid.NewString,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.publisher == nil {
		e.publisher = nopPublisher{}
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	if e.sweepBatch <= 0 {
		e.sweepBatch = maxListLimit
	}
	return e, nil
}

// RequestInput is a candidate reservation submitted by a requester.
type RequestInput struct {
	UserID    string
	VehicleID string
	StationID string
	SlotID    string
	StartTime time.Time
	EndTime   time.Time
}

func (in RequestInput) validate() error {
	var problems []string
	if strings.TrimSpace(in.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(in.SlotID) == "" {
		problems = append(problems, "slot_id is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		problems = append(problems, "start_time and end_time are required")
	} else if !in.EndTime.After(in.StartTime) {
		problems = append(problems, "end_time must be after start_time")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// RequestBooking stores a new pending booking. The overlap check here is an early rejection
// only; Accept re-validates under the slot lock.
func (e *BookingEngine) RequestBooking(ctx context.Context, in RequestInput) (*models.Booking, error) {
	if err := in.validate(); err != nil {
		e.metrics.Rejected("request", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	slot, err := e.store.GetSlot(ctx, in.SlotID)
	if err != nil {
		return nil, e.fail("request", classify(err))
	}
	if in.StationID == "" {
		in.StationID = slot.StationID
	}
	if slot.StationID != in.StationID {
		return nil, e.fail("request", fmt.Errorf("%w: slot %s does not belong to station %s", ErrValidation, slot.ID, in.StationID))
	}
	if !slot.IsAvailable {
		return nil, e.fail("request", fmt.Errorf("%w: slot %s is not available", ErrValidation, slot.ID))
	}

	candidate := models.Interval{Start: in.StartTime.UTC(), End: in.EndTime.UTC()}
	existing, err := HasBlockingConflict(ctx, e.store, candidate, slot.ID, requestCheckStatuses, "")
	if err != nil {
		return nil, e.fail("request", classify(err))
	}
	if existing != nil {
		return nil, e.fail("request", fmt.Errorf("%w: slot %s unavailable between %s and %s due to booking %s",
			ErrConflict, slot.ID, existing.StartTime.Format(time.RFC3339), existing.EndTime.Format(time.RFC3339), existing.ID))
	}

	now := e.clock.Now()
	booking := &models.Booking{
		ID:        e.newID(),
		UserID:    in.UserID,
		VehicleID: in.VehicleID,
		StationID: in.StationID,
		SlotID:    slot.ID,
		StartTime: candidate.Start,
		EndTime:   candidate.End,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.InsertBooking(ctx, booking); err != nil {
		return nil, e.fail("request", classify(err))
	}

	e.logger.Info("booking requested",
		zap.String("booking_id", booking.ID),
		zap.String("slot_id", booking.SlotID),
		zap.String("user_id", booking.UserID),
		zap.Time("start_time", booking.StartTime),
		zap.Time("end_time", booking.EndTime),
	)
	e.committed(ctx, *booking, "", models.StatusPending, now)
	return booking, nil
}

// Accept confirms a pending booking. The manager check runs before the slot lock is taken;
// station and slot never change after the request. The status check, accepted-overlap check
// and conditional write run under the slot lock, so two overlapping accepts cannot both win.
func (e *BookingEngine) Accept(ctx context.Context, bookingID, principalID string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	located, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, e.fail("accept", classify(err))
	}
	if located.Status != models.StatusPending {
		return nil, e.fail("accept", fmt.Errorf("%w: booking %s is %s, not pending", ErrConflict, located.ID, located.Status))
	}
	if err := e.requireManager(ctx, principalID, located.StationID); err != nil {
		return nil, e.fail("accept", classify(err))
	}

	var accepted models.Booking
	err = e.store.WithSlotLock(ctx, located.SlotID, func(ctx context.Context, tx ReservationStore) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != models.StatusPending {
			return fmt.Errorf("%w: booking %s is %s, not pending", ErrConflict, booking.ID, booking.Status)
		}

		rival, err := HasBlockingConflict(ctx, tx, booking.Interval(), booking.SlotID, models.CommittedStatuses, booking.ID)
		if err != nil {
			return err
		}
		if rival != nil {
			return fmt.Errorf("%w: slot %s already taken by booking %s", ErrConflict, booking.SlotID, rival.ID)
		}

		swapped, err := tx.CompareAndSetStatus(ctx, booking.ID, models.StatusPending, models.StatusAccepted)
		if err != nil {
			return err
		}
		if !swapped {
			return fmt.Errorf("%w: booking %s changed while accepting", ErrConflict, booking.ID)
		}

		accepted = *booking
		return nil
	})
	if err != nil {
		return nil, e.fail("accept", classify(err))
	}

	now := e.clock.Now()
	accepted.Status = models.StatusAccepted
	accepted.UpdatedAt = now

	e.logger.Info("booking accepted",
		zap.String("booking_id", accepted.ID),
		zap.String("slot_id", accepted.SlotID),
		zap.String("principal_id", principalID),
	)
	e.committed(ctx, accepted, models.StatusPending, models.StatusAccepted, now)
	return &accepted, nil
}

// Reject declines a pending booking on behalf of the station manager.
func (e *BookingEngine) Reject(ctx context.Context, bookingID, principalID string) (*models.Booking, error) {
	return e.manualTransition(ctx, "reject", models.EventReject, bookingID, principalID, false)
}

// Cancel withdraws a pending or accepted booking. The requester or the station manager may cancel.
func (e *BookingEngine) Cancel(ctx context.Context, bookingID, principalID string) (*models.Booking, error) {
	return e.manualTransition(ctx, "cancel", models.EventCancel, bookingID, principalID, true)
}

func (e *BookingEngine) manualTransition(
	ctx context.Context,
	op string,
	event models.BookingEvent,
	bookingID, principalID string,
	requesterAllowed bool,
) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, e.fail(op, classify(err))
	}

	from := booking.Status
	to, ok := from.TransitionFor(event)
	if !ok {
		return nil, e.fail(op, fmt.Errorf("%w: cannot %s booking %s in status %s", ErrConflict, event, booking.ID, from))
	}

	if !(requesterAllowed && principalID != "" && principalID == booking.UserID) {
		if err := e.requireManager(ctx, principalID, booking.StationID); err != nil {
			return nil, e.fail(op, classify(err))
		}
	}

	swapped, err := e.store.CompareAndSetStatus(ctx, booking.ID, from, to)
	if err != nil {
		return nil, e.fail(op, classify(err))
	}
	if !swapped {
		return nil, e.fail(op, fmt.Errorf("%w: booking %s is no longer %s", ErrConflict, booking.ID, from))
	}

	now := e.clock.Now()
	booking.Status = to
	booking.UpdatedAt = now

	e.logger.Info("booking "+string(to),
		zap.String("booking_id", booking.ID),
		zap.String("from", string(from)),
		zap.String("principal_id", principalID),
	)
	e.committed(ctx, *booking, from, to, now)
	return booking, nil
}

// GetBooking returns a booking visible to its requester or the station manager.
func (e *BookingEngine) GetBooking(ctx context.Context, bookingID, principalID string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, classify(err)
	}
	if principalID == booking.UserID {
		return booking, nil
	}
	if err := e.requireManager(ctx, principalID, booking.StationID); err != nil {
		return nil, classify(err)
	}
	return booking, nil
}

// ListForUser returns a requester's most recent bookings.
func (e *BookingEngine) ListForUser(ctx context.Context, userID string, limit int) ([]models.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	bookings, err := e.store.ListBookingsForUser(ctx, userID, limit)
	if err != nil {
		return nil, classify(err)
	}
	return bookings, nil
}

// ListPendingForStation returns the pending queue a station manager works through.
func (e *BookingEngine) ListPendingForStation(ctx context.Context, stationID, principalID string) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	if err := e.requireManager(ctx, principalID, stationID); err != nil {
		return nil, classify(err)
	}
	bookings, err := e.store.ListBookingsForStation(ctx, stationID, []models.BookingStatus{models.StatusPending})
	if err != nil {
		return nil, classify(err)
	}
	return bookings, nil
}

func (e *BookingEngine) requireManager(ctx context.Context, principalID, stationID string) error {
	if strings.TrimSpace(principalID) == "" {
		return fmt.Errorf("%w: missing principal", ErrUnauthorized)
	}
	ok, err := e.authorizer.IsStationManager(ctx, principalID, stationID)
	if err != nil {
		return fmt.Errorf("%w: authorization lookup: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: principal %s does not manage station %s", ErrUnauthorized, principalID, stationID)
	}
	return nil
}

func (e *BookingEngine) fail(op string, err error) error {
	e.metrics.Rejected(op, err)
	if errors.Is(err, ErrConflict) {
		e.logger.Warn("booking transition refused", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (e *BookingEngine) committed(ctx context.Context, booking models.Booking, from, to models.BookingStatus, at time.Time) {
	e.metrics.Transition(from, to)
	e.publisher.Publish(ctx, BookingChange{Booking: booking, From: from, To: to, At: at})
}
