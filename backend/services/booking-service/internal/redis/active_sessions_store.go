package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// ActiveSessionStore caches sessions of active bookings. It decorates a SessionRecorder: the
// cache is written after the recorder opens a session and evicted once it is closed.
type ActiveSessionStore struct {
	client *redis.Client
	next   service.SessionRecorder
	ttl    time.Duration
	logger *zap.Logger
}

var _ service.SessionRecorder = (*ActiveSessionStore)(nil)

// NewActiveSessionStore returns redis-backed store.
func NewActiveSessionStore(client *redis.Client, next service.SessionRecorder, ttl time.Duration, logger *zap.Logger) *ActiveSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActiveSessionStore{client: client, next: next, ttl: ttl, logger: logger}
}

func (s *ActiveSessionStore) key(bookingID string) string {
	return fmt.Sprintf("bookings:session:%s", bookingID)
}

// OpenSession records the session and caches it. Cache failures are logged only.
func (s *ActiveSessionStore) OpenSession(ctx context.Context, booking models.Booking, startedAt time.Time) (*models.ChargingSession, error) {
	session, err := s.next.OpenSession(ctx, booking, startedAt)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, *session); err != nil {
		s.logger.Warn("failed to cache active session", zap.String("booking_id", booking.ID), zap.Error(err))
	}
	return session, nil
}

// CloseSession finalizes the session and evicts it from the cache.
func (s *ActiveSessionStore) CloseSession(ctx context.Context, booking models.Booking, endedAt time.Time) error {
	if err := s.next.CloseSession(ctx, booking, endedAt); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(booking.ID)).Err(); err != nil {
		s.logger.Warn("failed to evict active session", zap.String("booking_id", booking.ID), zap.Error(err))
	}
	return nil
}

// ActiveSession returns the cached session of an active booking. Misses and cache errors fall
// through to the wrapped recorder when it can answer lookups itself.
func (s *ActiveSessionStore) ActiveSession(ctx context.Context, bookingID string) (*models.ChargingSession, error) {
	result, err := s.client.Get(ctx, s.key(bookingID)).Result()
	if err == nil {
		var session models.ChargingSession
		if err := json.Unmarshal([]byte(result), &session); err == nil {
			return &session, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Debug("active session cache read failed", zap.String("booking_id", bookingID), zap.Error(err))
	}

	if lookup, ok := s.next.(sessionLookup); ok {
		return lookup.ActiveSession(ctx, bookingID)
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", service.ErrStoreUnavailable, err)
	}
	return nil, fmt.Errorf("%w: no active session for booking %s", service.ErrNotFound, bookingID)
}

type sessionLookup interface {
	ActiveSession(ctx context.Context, bookingID string) (*models.ChargingSession, error)
}

func (s *ActiveSessionStore) save(ctx context.Context, session models.ChargingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.BookingID), data, s.ttl).Err()
}
