package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"evbooking/backend/services/booking-service/internal/sweeper"
)

// SweepRunner runs one activation + completion pass.
type SweepRunner interface {
	RunOnce(ctx context.Context) (sweeper.Result, error)
}

// NewRunSweepsHandler handles POST /internal/sweeps/run.
func NewRunSweepsHandler(runner SweepRunner, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := runner.RunOnce(r.Context())
		if err != nil {
			logger.Warn("manual sweep failed", zap.Error(err))
			status, message := publicError(err)
			writeJSON(w, status, map[string]interface{}{
				"error":  message,
				"result": res,
			})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// NewHealthHandler reports liveness.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
