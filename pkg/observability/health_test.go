package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHealthChecker_Check(t *testing.T) {
	hc := NewHealthChecker(fakePinger{})
	hc.Register("dispatcher", func(ctx context.Context) error { return nil })

	status := hc.Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["database"])
	assert.Equal(t, "healthy", status.Checks["dispatcher"])
}

func TestHealthChecker_UnhealthyComponent(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("connection refused")})
	hc.Register("dispatcher", func(ctx context.Context) error { return errors.New("stopped") })

	status := hc.Check(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "unhealthy: connection refused", status.Checks["database"])
	assert.Equal(t, "unhealthy: stopped", status.Checks["dispatcher"])
	assert.False(t, hc.Healthy(context.Background()))
}

func TestHealthChecker_NoDatabase(t *testing.T) {
	hc := NewHealthChecker(nil)
	status := hc.Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "not configured", status.Checks["database"])
}

func TestHealthHandler(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("down")})

	rec := httptest.NewRecorder()
	hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "2xx", statusLabel(200))
	assert.Equal(t, "4xx", statusLabel(401))
	assert.Equal(t, "5xx", statusLabel(500))
	assert.Equal(t, "other", statusLabel(0))
}
