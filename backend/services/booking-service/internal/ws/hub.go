// Package ws streams committed booking changes to connected station managers and requesters.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/service"
)

// Event is the frame written to subscribers.
type Event struct {
	Type   string                `json:"type"`
	Change service.BookingChange `json:"change"`
}

// PrincipalFunc extracts the authenticated principal from a request.
type PrincipalFunc func(r *http.Request) (string, bool)

// Hub fans booking changes out to websocket subscribers.
type Hub struct {
	connections  *xsync.Map[uint64, *Connection]
	nextID       atomic.Uint64
	authorizer   service.StationAuthorizer
	principal    PrincipalFunc
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	ctx          context.Context
	cancel       context.CancelFunc
}

var _ service.ChangePublisher = (*Hub)(nil)

// NewHub builds the hub.
func NewHub(authorizer service.StationAuthorizer, principal PrincipalFunc, writeTimeout time.Duration, logger *zap.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		connections:  xsync.NewMap[uint64, *Connection](),
		authorizer:   authorizer,
		principal:    principal,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish implements service.ChangePublisher. It never blocks on slow subscribers.
func (h *Hub) Publish(_ context.Context, change service.BookingChange) {
	payload, err := json.Marshal(Event{Type: "booking." + string(change.To), Change: change})
	if err != nil {
		h.logger.Warn("failed to encode booking event", zap.String("booking_id", change.Booking.ID), zap.Error(err))
		return
	}
	h.connections.Range(func(_ uint64, conn *Connection) bool {
		if conn.Wants(change.Booking.StationID, change.Booking.UserID) {
			conn.Send(payload)
		}
		return true
	})
}

// Subscribers returns the number of open connections.
func (h *Hub) Subscribers() int {
	return h.connections.Size()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.cancel()
}

// HandleWS upgrades GET /ws/bookings. Every station_id query value must be managed by the
// caller; with none given the caller only receives changes to their own bookings.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principal(r)
	if !ok || principalID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	stations := r.URL.Query()["station_id"]
	for _, stationID := range stations {
		manages, err := h.authorizer.IsStationManager(r.Context(), principalID, stationID)
		if err != nil {
			http.Error(w, "authorization lookup failed", http.StatusServiceUnavailable)
			return
		}
		if !manages {
			http.Error(w, "not a manager of station "+stationID, http.StatusForbidden)
			return
		}
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := h.nextID.Add(1)
	conn := NewConnection(id, principalID, stations, socket, h.writeTimeout, h.logger, func(id uint64) {
		h.connections.Delete(id)
	})
	h.connections.Store(id, conn)

	go conn.Start(h.ctx)
	h.logger.Info("booking feed subscriber connected",
		zap.String("principal_id", principalID),
		zap.Strings("stations", stations),
	)
}
