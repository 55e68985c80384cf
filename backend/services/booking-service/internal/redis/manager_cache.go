package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/service"
)

const managerYes = "1"

// ManagerCache memoizes positive station ownership lookups for a short TTL. Negative answers
// always go to next, so a newly assigned manager is recognized at once.
type ManagerCache struct {
	client *redis.Client
	next   service.StationAuthorizer
	ttl    time.Duration
	logger *zap.Logger
}

var _ service.StationAuthorizer = (*ManagerCache)(nil)

// NewManagerCache wraps next with a redis cache.
func NewManagerCache(client *redis.Client, next service.StationAuthorizer, ttl time.Duration, logger *zap.Logger) *ManagerCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManagerCache{client: client, next: next, ttl: ttl, logger: logger}
}

func (c *ManagerCache) key(stationID, principalID string) string {
	return fmt.Sprintf("bookings:manager:%s:%s", stationID, principalID)
}

// IsStationManager answers from the cache and falls through to next on a miss or cache error.
func (c *ManagerCache) IsStationManager(ctx context.Context, principalID, stationID string) (bool, error) {
	key := c.key(stationID, principalID)
	cached, err := c.client.Get(ctx, key).Result()
	if err == nil && cached == managerYes {
		return true, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Debug("manager cache read failed", zap.String("station_id", stationID), zap.Error(err))
	}

	ok, err := c.next.IsStationManager(ctx, principalID, stationID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := c.client.Set(ctx, key, managerYes, c.ttl).Err(); err != nil {
		c.logger.Debug("manager cache write failed", zap.String("station_id", stationID), zap.Error(err))
	}
	return true, nil
}
