package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Status    string            `json:"status"`
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckFunc reports the health of one named component; nil means healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecker manages health checks for the service
type HealthChecker struct {
	db     Pinger
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker creates a new HealthChecker
func NewHealthChecker(db Pinger) *HealthChecker {
	return &HealthChecker{
		db:     db,
		checks: make(map[string]CheckFunc),
	}
}

// Register adds a named component check.
func (h *HealthChecker) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string)
	overallStatus := "healthy"

	if h.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := h.db.Ping(dbCtx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

// Healthy is a convenience wrapper around Check.
func (h *HealthChecker) Healthy(ctx context.Context) bool {
	return h.Check(ctx).Status == "healthy"
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	}
}
