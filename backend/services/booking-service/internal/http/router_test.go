package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/http/handlers"
	"evbooking/backend/services/booking-service/internal/memstore"
	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
	"evbooking/backend/services/booking-service/internal/sweeper"
)

const secret = "router-test-secret"

type apiFixture struct {
	handler http.Handler
	store   *memstore.Store
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	store := memstore.New(nil)
	store.PutSlot(models.Slot{ID: "slot-1", StationID: "station-1", ConnectorType: "CCS2", IsAvailable: true})
	store.AssignManager("station-1", "manager-1")

	sessions := memstore.NewSessionLog()
	engine, err := service.NewBookingEngine(service.EngineDeps{Store: store, Authorizer: store, Sessions: sessions})
	require.NoError(t, err)

	bookings := handlers.NewBookingsHandler(engine, sessions, nil)
	routes := Routes{
		CreateBooking:  bookings.Create,
		MyBookings:     bookings.ListMine,
		GetBooking:     bookings.Get,
		BookingSession: bookings.Session,
		AcceptBooking:  bookings.Accept,
		RejectBooking:  bookings.Reject,
		CancelBooking:  bookings.Cancel,
		StationPending: bookings.StationPending,
		RunSweeps:      handlers.NewRunSweepsHandler(sweeper.New(engine, time.Minute, nil), zap.NewNop()),
		Health:         handlers.NewHealthHandler(),
	}
	return &apiFixture{handler: NewRouter(routes, RouterOptions{JWTSecret: secret}), store: store}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, user, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user, role))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func futureWindow(startHours, endHours int) (time.Time, time.Time) {
	base := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	return base.Add(time.Duration(startHours) * time.Hour), base.Add(time.Duration(endHours) * time.Hour)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	api := newAPI(t)
	start, end := futureWindow(0, 1)

	rec := api.do(t, http.MethodPost, "/api/bookings", "driver-1", "", map[string]interface{}{
		"slot_id":    "slot-1",
		"vehicle_id": "vehicle-1",
		"start_time": start,
		"end_time":   end,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Booking](t, rec)
	require.Equal(t, models.StatusPending, created.Status)
	require.Equal(t, "station-1", created.StationID)

	rec = api.do(t, http.MethodPost, "/api/bookings", "driver-2", "", map[string]interface{}{
		"slot_id":    "slot-1",
		"start_time": start.Add(30 * time.Minute),
		"end_time":   end.Add(30 * time.Minute),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/stations/station-1/bookings/pending", "manager-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, rec)
	require.Len(t, pending.Bookings, 1)

	rec = api.do(t, http.MethodPost, "/api/bookings/"+created.ID+"/accept", "driver-1", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/bookings/"+created.ID+"/accept", "manager-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, models.StatusAccepted, decode[models.Booking](t, rec).Status)

	rec = api.do(t, http.MethodPost, "/api/bookings/"+created.ID+"/accept", "manager-1", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/bookings/me", "driver-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, rec)
	require.Len(t, mine.Bookings, 1)

	rec = api.do(t, http.MethodGet, "/api/bookings/"+created.ID+"/session", "driver-1", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code, "no session before activation")

	rec = api.do(t, http.MethodPost, "/api/bookings/"+created.ID+"/cancel", "driver-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.StatusCancelled, decode[models.Booking](t, rec).Status)
}

func TestCreateBookingValidation(t *testing.T) {
	api := newAPI(t)
	start, end := futureWindow(2, 1)

	rec := api.do(t, http.MethodPost, "/api/bookings", "driver-1", "", map[string]interface{}{
		"slot_id":    "slot-1",
		"start_time": start,
		"end_time":   end,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "end_time")

	rec = api.do(t, http.MethodPost, "/api/bookings", "driver-1", "", map[string]interface{}{"start_time": start})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/bookings", "driver-1", "", map[string]interface{}{
		"slot_id":    "missing",
		"start_time": end,
		"end_time":   start,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterAuthAndMethods(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, http.MethodGet, "/api/bookings/me", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/bookings/x/accept", "manager-1", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/bookings/unknown", "driver-1", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/health", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunSweepsRequiresAdmin(t *testing.T) {
	api := newAPI(t)
	past := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, api.store.InsertBooking(context.Background(), &models.Booking{
		ID: "due", UserID: "driver-1", StationID: "station-1", SlotID: "slot-1",
		StartTime: past, EndTime: past.Add(time.Hour), Status: models.StatusAccepted,
	}))

	rec := api.do(t, http.MethodPost, "/internal/sweeps/run", "manager-1", "manager", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/internal/sweeps/run", "ops-1", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, sweeper.Result{Activated: 1, Completed: 1}, decode[sweeper.Result](t, rec))
}

func TestServerStopsOnContextCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
