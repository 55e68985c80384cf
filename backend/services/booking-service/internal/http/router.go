package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/http/middleware"
)

// Routes groups handlers.
type Routes struct {
	CreateBooking  http.HandlerFunc
	MyBookings     http.HandlerFunc
	GetBooking     http.HandlerFunc
	BookingSession http.HandlerFunc
	AcceptBooking  http.HandlerFunc
	RejectBooking  http.HandlerFunc
	CancelBooking  http.HandlerFunc
	StationPending http.HandlerFunc
	RunSweeps      http.HandlerFunc
	BookingFeed    http.HandlerFunc
	Health         http.HandlerFunc
	Metrics        http.Handler
}

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	JWTSecret string
	Logger    *zap.Logger
	Observer  middleware.RequestObserver
}

// NewRouter registers endpoints.
func NewRouter(routes Routes, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := middleware.AuthMiddleware(opts.JWTSecret)
	admin := func(h http.Handler) http.Handler {
		return auth(middleware.RequireRole(middleware.RoleAdmin)(h))
	}

	mux := http.NewServeMux()
	handle := func(pattern, verb string, h http.HandlerFunc, wrap func(http.Handler) http.Handler) {
		if h == nil {
			return
		}
		mux.Handle(pattern, wrap(method(verb, h)))
	}

	handle("/api/bookings", http.MethodPost, routes.CreateBooking, auth)
	handle("/api/bookings/me", http.MethodGet, routes.MyBookings, auth)
	handle("/api/bookings/{id}", http.MethodGet, routes.GetBooking, auth)
	handle("/api/bookings/{id}/session", http.MethodGet, routes.BookingSession, auth)
	handle("/api/bookings/{id}/accept", http.MethodPost, routes.AcceptBooking, auth)
	handle("/api/bookings/{id}/reject", http.MethodPost, routes.RejectBooking, auth)
	handle("/api/bookings/{id}/cancel", http.MethodPost, routes.CancelBooking, auth)
	handle("/api/stations/{id}/bookings/pending", http.MethodGet, routes.StationPending, auth)
	handle("/internal/sweeps/run", http.MethodPost, routes.RunSweeps, admin)
	handle("/ws/bookings", http.MethodGet, routes.BookingFeed, auth)

	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", routes.Metrics)
	}

	return middleware.Chain(mux,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger, opts.Observer),
	)
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
