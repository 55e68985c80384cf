package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/http/middleware"
	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// BookingEngine is the lifecycle API the handlers drive.
type BookingEngine interface {
	RequestBooking(ctx context.Context, in service.RequestInput) (*models.Booking, error)
	Accept(ctx context.Context, bookingID, principalID string) (*models.Booking, error)
	Reject(ctx context.Context, bookingID, principalID string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, principalID string) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, principalID string) (*models.Booking, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Booking, error)
	ListPendingForStation(ctx context.Context, stationID, principalID string) ([]models.Booking, error)
}

// SessionLookup returns the open charging session of a booking.
type SessionLookup interface {
	ActiveSession(ctx context.Context, bookingID string) (*models.ChargingSession, error)
}

// BookingsHandler serves the booking endpoints.
type BookingsHandler struct {
	engine   BookingEngine
	sessions SessionLookup
	logger   *zap.Logger
}

// NewBookingsHandler returns handler. sessions may be nil.
func NewBookingsHandler(engine BookingEngine, sessions SessionLookup, logger *zap.Logger) *BookingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingsHandler{engine: engine, sessions: sessions, logger: logger}
}

type createBookingRequest struct {
	StationID string    `json:"station_id"`
	SlotID    string    `json:"slot_id" validate:"required"`
	VehicleID string    `json:"vehicle_id"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// Create handles POST /api/bookings.
func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createBookingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := h.engine.RequestBooking(r.Context(), service.RequestInput{
		UserID:    userID,
		VehicleID: req.VehicleID,
		StationID: req.StationID,
		SlotID:    req.SlotID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// ListMine handles GET /api/bookings/me.
func (h *BookingsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	bookings, err := h.engine.ListForUser(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": bookings})
}

// Get handles GET /api/bookings/{id}.
func (h *BookingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	booking, err := h.engine.GetBooking(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// Session handles GET /api/bookings/{id}/session.
func (h *BookingsHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.sessions == nil {
		writeError(w, http.StatusNotFound, "session tracking disabled")
		return
	}

	booking, err := h.engine.GetBooking(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	session, err := h.sessions.ActiveSession(r.Context(), booking.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Accept handles POST /api/bookings/{id}/accept.
func (h *BookingsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Accept)
}

// Reject handles POST /api/bookings/{id}/reject.
func (h *BookingsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Reject)
}

// Cancel handles POST /api/bookings/{id}/cancel.
func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Cancel)
}

func (h *BookingsHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*models.Booking, error)) {
	userID, ok := middleware.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	booking, err := op(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// StationPending handles GET /api/stations/{id}/bookings/pending.
func (h *BookingsHandler) StationPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bookings, err := h.engine.ListPendingForStation(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": bookings})
}
