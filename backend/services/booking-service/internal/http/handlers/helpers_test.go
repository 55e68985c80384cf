package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"evbooking/backend/services/booking-service/internal/service"
)

func TestWriteServiceErrorHidesStorageDetails(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
		wantLogged bool
	}{
		{
			name:       "store unavailable",
			err:        fmt.Errorf("%w: dial tcp 10.0.0.5:5432: connect: connection refused", service.ErrStoreUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "storage temporarily unavailable",
			wantLogged: true,
		},
		{
			name:       "unexpected",
			err:        errors.New("pq: relation \"bookings\" does not exist"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
			wantLogged: true,
		},
		{
			name:       "conflict",
			err:        fmt.Errorf("%w: slot slot-1 already taken by booking b2", service.ErrConflict),
			wantStatus: http.StatusConflict,
			wantBody:   "booking: conflict: slot slot-1 already taken by booking b2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			rec := httptest.NewRecorder()

			writeServiceError(rec, zap.New(core), tt.err)

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.wantBody, body["error"])

			if tt.wantLogged {
				require.Equal(t, 1, logs.Len())
				require.Contains(t, logs.All()[0].ContextMap()["error"], tt.err.Error())
			} else {
				require.Zero(t, logs.Len())
			}
		})
	}
}
