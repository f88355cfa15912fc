package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sync/internal/auth"
	"github.com/kevin07696/gateway-sync/internal/middleware"
)

func echoSubject() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.Actor(r.Context())))
	})
}

func TestBearerAuth(t *testing.T) {
	m, err := auth.NewJWTManager("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	valid, err := m.GenerateToken("ops", nil, time.Hour)
	require.NoError(t, err)
	readOnly, err := m.GenerateToken("viewer", []string{auth.ScopeSyncRead}, time.Hour)
	require.NoError(t, err)

	h := middleware.BearerAuth(m, zap.NewNop())(middleware.RequireScope(auth.ScopeSyncWrite)(echoSubject()))

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "ops"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "ops"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
		{"insufficient scope", "Bearer " + readOnly, http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sync/status/T1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestCronAuth(t *testing.T) {
	h := middleware.CronAuth("cron-secret", zap.NewNop())(echoSubject())

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"cron header", "X-Cron-Secret", "cron-secret", http.StatusOK},
		{"bearer", "Authorization", "Bearer cron-secret", http.StatusOK},
		{"wrong secret", "X-Cron-Secret", "guess", http.StatusUnauthorized},
		{"none", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/cron/retry-reset", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	// An unset secret never authorizes.
	open := middleware.CronAuth("", zap.NewNop())(echoSubject())
	req := httptest.NewRequest(http.MethodPost, "/cron/retry-reset", nil)
	req.Header.Set("X-Cron-Secret", "")
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "192.0.2.9"}, "10.0.0.2:5000", "192.0.2.9"},
		{"remote addr", nil, "10.0.0.2:5000", "10.0.0.2"},
		{"remote without port", nil, "10.0.0.3", "10.0.0.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/ACME", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, middleware.ClientIP(req))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	prod := middleware.NewSecurityHeaders(false).Middleware(echoSubject())
	rec := httptest.NewRecorder()
	prod.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	dev := middleware.NewSecurityHeaders(true).Middleware(echoSubject())
	rec = httptest.NewRecorder()
	dev.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
