package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"evbooking/backend/services/booking-service/internal/memstore"
	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// unreachableClient points at a closed port so every command fails fast.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type countingAuthorizer struct {
	calls int
	ok    bool
}

func (a *countingAuthorizer) IsStationManager(context.Context, string, string) (bool, error) {
	a.calls++
	return a.ok, nil
}

func TestManagerCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	next := &countingAuthorizer{ok: true}
	cache := NewManagerCache(unreachableClient(t), next, time.Minute, nil)

	ok, err := cache.IsStationManager(context.Background(), "manager-1", "station-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, next.calls)
}

func TestActiveSessionStoreKeepsRecorderResult(t *testing.T) {
	log := memstore.NewSessionLog()
	store := NewActiveSessionStore(unreachableClient(t), log, time.Hour, nil)
	booking := models.Booking{ID: "b1", UserID: "driver-1", StationID: "station-1", SlotID: "slot-1"}
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	session, err := store.OpenSession(context.Background(), booking, started)
	require.NoError(t, err)
	require.Equal(t, "b1", session.BookingID)

	cached, err := store.ActiveSession(context.Background(), "b1")
	require.NoError(t, err, "falls through to the recorder")
	require.Equal(t, session.ID, cached.ID)

	require.NoError(t, store.CloseSession(context.Background(), booking, started.Add(time.Hour)))
	recorded, ok := log.ForBooking("b1")
	require.True(t, ok)
	require.Equal(t, models.SessionStatusCompleted, recorded.Status)

	_, err = store.ActiveSession(context.Background(), "b1")
	require.ErrorIs(t, err, service.ErrNotFound)
}

type recorderOnly struct{ service.SessionRecorder }

func TestActiveSessionWithoutFallbackReportsCacheOutage(t *testing.T) {
	store := NewActiveSessionStore(unreachableClient(t), recorderOnly{memstore.NewSessionLog()}, time.Hour, nil)

	_, err := store.ActiveSession(context.Background(), "b1")
	require.ErrorIs(t, err, service.ErrStoreUnavailable)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "bookings:session:b1", (&ActiveSessionStore{}).key("b1"))
	require.Equal(t, "bookings:manager:s1:p1", (&ManagerCache{}).key("s1", "p1"))
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestManagerCacheDoesNotRememberRefusals(t *testing.T) {
	server, client := newMiniredisClient(t)
	next := &countingAuthorizer{ok: false}
	cache := NewManagerCache(client, next, time.Minute, nil)
	ctx := context.Background()

	ok, err := cache.IsStationManager(ctx, "manager-1", "station-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, server.Exists("bookings:manager:station-1:manager-1"))

	next.ok = true
	ok, err = cache.IsStationManager(ctx, "manager-1", "station-1")
	require.NoError(t, err)
	require.True(t, ok, "newly assigned manager is recognized without waiting for the TTL")
	require.Equal(t, 2, next.calls)

	ok, err = cache.IsStationManager(ctx, "manager-1", "station-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, next.calls, "positive answer served from cache")
	require.Equal(t, time.Minute, server.TTL("bookings:manager:station-1:manager-1"))
}

func TestActiveSessionStoreServesCachedSession(t *testing.T) {
	server, client := newMiniredisClient(t)
	store := NewActiveSessionStore(client, recorderOnly{memstore.NewSessionLog()}, time.Hour, nil)
	booking := models.Booking{ID: "b1", UserID: "driver-1", StationID: "station-1", SlotID: "slot-1"}
	ctx := context.Background()

	session, err := store.OpenSession(ctx, booking, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, server.Exists("bookings:session:b1"))

	cached, err := store.ActiveSession(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, session.ID, cached.ID)

	require.NoError(t, store.CloseSession(ctx, booking, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)))
	require.False(t, server.Exists("bookings:session:b1"))

	_, err = store.ActiveSession(ctx, "b1")
	require.ErrorIs(t, err, service.ErrNotFound)
}
