package webhook

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sync/internal/middleware"
	"github.com/kevin07696/gateway-sync/internal/services/inbound"
	"github.com/kevin07696/gateway-sync/pkg/encoding"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

// maxBodyBytes caps gateway callback bodies.
const maxBodyBytes = 1 << 20

// Receiver processes one gateway callback.
type Receiver interface {
	Receive(ctx context.Context, req inbound.Request) *inbound.Response
}

// Handler serves the inbound gateway webhook routes.
type Handler struct {
	receiver Receiver
	clock    timeutil.Clock
	logger   *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(receiver Receiver, clock timeutil.Clock, logger *zap.Logger) *Handler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Handler{
		receiver: receiver,
		clock:    clock,
		logger:   logger,
	}
}

// Routes mounts the webhook endpoints. The static health route wins over
// the {gateway_code} pattern.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/health", h.Health)
	r.Post("/{gateway_code}", h.Receive)
}

// Receive handles POST /webhooks/{gateway_code}
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	gatewayCode := chi.URLParam(r, "gateway_code")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("Failed to read webhook body",
			zap.String("gateway_code", gatewayCode),
			zap.Error(err),
		)
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
		return
	}

	resp := h.receiver.Receive(r.Context(), inbound.Request{
		Headers:     r.Header,
		Body:        body,
		GatewayCode: gatewayCode,
		RemoteIP:    middleware.ClientIP(r),
	})
	h.respondJSON(w, resp.Status, resp.Body)
}

// Health handles POST /webhooks/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": timeutil.FormatISO(h.clock.Now()),
		"message":   "Webhook system is operational",
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	if err := encoding.WriteJSON(w, status, body); err != nil {
		h.logger.Error("Failed to encode webhook response", zap.Error(err))
	}
}
