package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(p.UserID + "|" + p.Role))
	})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(testSecret)(echoPrincipal())
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{
			name:       "string user id",
			header:     "Bearer " + signed(t, jwt.MapClaims{"user_id": "manager-1", "role": "manager", "exp": exp}, testSecret),
			wantStatus: http.StatusOK,
			wantBody:   "manager-1|manager",
		},
		{
			name:       "numeric user id",
			header:     "Bearer " + signed(t, jwt.MapClaims{"user_id": 42, "exp": exp}, testSecret),
			wantStatus: http.StatusOK,
			wantBody:   "42|",
		},
		{
			name:       "query token",
			query:      "?access_token=" + signed(t, jwt.MapClaims{"user_id": "driver-1", "exp": exp}, testSecret),
			wantStatus: http.StatusOK,
			wantBody:   "driver-1|",
		},
		{
			name:       "bad signature",
			header:     "Bearer " + signed(t, jwt.MapClaims{"user_id": "x", "exp": exp}, "other"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			header:     "Bearer " + signed(t, jwt.MapClaims{"user_id": "x", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no user id",
			header:     "Bearer " + signed(t, jwt.MapClaims{"role": "admin", "exp": exp}, testSecret),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/bookings/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin)(echoPrincipal())

	req := httptest.NewRequest(http.MethodPost, "/internal/sweeps/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "u", Role: "manager"})))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "u", Role: RoleAdmin})))
	require.Equal(t, http.StatusOK, rec.Code)
}

type observed struct {
	method string
	status int
}

func (o *observed) ObserveRequest(method string, status int, _ time.Duration) {
	o.method, o.status = method, status
}

func TestChainOrderAndRecovery(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	obs := &observed{}
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	handler := Chain(panicky,
		LoggingMiddleware(zap.NewNop(), obs),
		RecoveryMiddleware(zap.NewNop()),
		mark("first"),
		mark("second"),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, http.MethodGet, obs.method)
	require.Equal(t, http.StatusInternalServerError, obs.status)
}
