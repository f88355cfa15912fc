package cron_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/gateway-sync/internal/handlers/cron"
	"github.com/kevin07696/gateway-sync/internal/middleware"
	"github.com/kevin07696/gateway-sync/internal/services/sweeper"
	"github.com/kevin07696/gateway-sync/internal/testutil/fixtures"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

const cronSecret = "cron-secret-value"

type mockRunner struct{ mock.Mock }

func (m *mockRunner) RunByName(ctx context.Context, name string) (int, error) {
	args := m.Called(ctx, name)
	return args.Int(0), args.Error(1)
}

func (m *mockRunner) Names() []string {
	return m.Called().Get(0).([]string)
}

func newRouter(t *testing.T, runner cron.SweeperRunner) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := cron.NewSweeperHandler(runner, timeutil.NewFakeClock(fixtures.Epoch), logger)

	r := chi.NewRouter()
	r.Route("/cron", func(r chi.Router) {
		r.Use(middleware.CronAuth(cronSecret, logger))
		h.Routes(r)
	})
	return r
}

func post(t *testing.T, router http.Handler, path, secret string) (int, cron.SweepResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if secret != "" {
		req.Header.Set("X-Cron-Secret", secret)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp cron.SweepResponse
	if rec.Code != http.StatusUnauthorized {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		affected int
		err      error
		status   int
		errMsg   string
	}{
		{"success", 4, nil, http.StatusOK, ""},
		{"failure", 1, errors.New("list stale pending: timeout"), http.StatusInternalServerError, "list stale pending: timeout"},
		{"unknown", 0, sweeper.ErrUnknownSweeper.WithDetail("sweeper", "x"), http.StatusNotFound, "unknown sweeper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			runner.On("RunByName", mock.Anything, sweeper.PendingProbe).Return(tt.affected, tt.err)
			router := newRouter(t, runner)

			code, resp := post(t, router, "/cron/"+sweeper.PendingProbe, cronSecret)

			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.err == nil, resp.Success)
			assert.Equal(t, sweeper.PendingProbe, resp.Sweeper)
			assert.Equal(t, tt.affected, resp.Affected)
			assert.Equal(t, tt.errMsg, resp.Error)
			assert.Equal(t, "2025-01-15T10:00:00.000000Z", resp.ProcessedAt)
			runner.AssertExpectations(t)
		})
	}
}

func TestRun_RequiresCronSecret(t *testing.T) {
	runner := &mockRunner{}
	router := newRouter(t, runner)

	for _, secret := range []string{"", "wrong"} {
		code, _ := post(t, router, "/cron/"+sweeper.RetryReset, secret)
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	runner.AssertNotCalled(t, "RunByName", mock.Anything, mock.Anything)
}

func TestList(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Names").Return([]string{sweeper.Dispatch, sweeper.PendingProbe})
	router := newRouter(t, runner)

	req := httptest.NewRequest(http.MethodGet, "/cron/", nil)
	req.Header.Set("Authorization", "Bearer "+cronSecret)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sweepers":["dispatch","pending-probe"]}`, rec.Body.String())
}
