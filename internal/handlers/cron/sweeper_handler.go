package cron

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sync/internal/services/sweeper"
	"github.com/kevin07696/gateway-sync/pkg/encoding"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

// SweeperRunner runs one named sweeper immediately.
type SweeperRunner interface {
	RunByName(ctx context.Context, name string) (int, error)
	Names() []string
}

// SweeperHandler lets external schedulers such as Cloud Scheduler trigger the
// sweepers. Authentication is done by middleware.CronAuth.
type SweeperHandler struct {
	runner SweeperRunner
	clock  timeutil.Clock
	logger *zap.Logger
}

// NewSweeperHandler creates a new sweeper cron handler
func NewSweeperHandler(runner SweeperRunner, clock timeutil.Clock, logger *zap.Logger) *SweeperHandler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SweeperHandler{
		runner: runner,
		clock:  clock,
		logger: logger,
	}
}

// SweepResponse represents the response from a sweeper run
type SweepResponse struct {
	Sweeper     string `json:"sweeper"`
	Error       string `json:"error,omitempty"`
	ProcessedAt string `json:"processed_at"`
	Affected    int    `json:"affected"`
	Success     bool   `json:"success"`
}

// Routes mounts POST /{sweeper} and GET /.
func (h *SweeperHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/{sweeper}", h.Run)
}

// Run handles the POST /cron/{sweeper} endpoint
func (h *SweeperHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sweeper")
	h.logger.Info("Sweeper cron job triggered",
		zap.String("sweeper", name),
		zap.String("remote_addr", r.RemoteAddr),
	)

	affected, err := h.runner.RunByName(r.Context(), name)
	resp := SweepResponse{
		Sweeper:     name,
		Affected:    affected,
		ProcessedAt: timeutil.FormatISO(h.clock.Now()),
		Success:     err == nil,
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusInternalServerError
		if errors.Is(err, sweeper.ErrUnknownSweeper) {
			status = http.StatusNotFound
			resp.Error = "unknown sweeper"
		}
	}
	h.respondJSON(w, status, resp)
}

// List handles GET /cron/ and reports the sweeper names.
func (h *SweeperHandler) List(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"sweepers": h.runner.Names()})
}

func (h *SweeperHandler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	if err := encoding.WriteJSON(w, status, body); err != nil {
		h.logger.Error("Failed to encode cron response", zap.Error(err))
	}
}
