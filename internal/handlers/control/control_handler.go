// Package control serves the operator control API of the sync engine: manual
// probes, operator retries, queue views, gateway connection tests and
// merchant webhook administration.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sync/internal/auth"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/internal/middleware"
	"github.com/kevin07696/gateway-sync/internal/services/gatewaysync"
	"github.com/kevin07696/gateway-sync/pkg/encoding"
)

const (
	defaultWebhookLogLimit = 50
	maxRequestBytes        = 64 << 10
)

// SyncService is the subset of gatewaysync.Service the handler drives.
type SyncService interface {
	EnqueueStatus(ctx context.Context, txnID string, force bool) (*gatewaysync.EnqueueResult, error)
	EnqueueRefund(ctx context.Context, req gatewaysync.RefundRequest) (*gatewaysync.EnqueueResult, error)
	EnqueueSettlement(ctx context.Context, req gatewaysync.SettlementRequest) (*gatewaysync.EnqueueResult, error)
	Retry(ctx context.Context, syncID int64) (*domain.SyncTask, error)
	GetTask(ctx context.Context, syncID int64) (*domain.SyncTask, error)
	ListLogs(ctx context.Context, syncID int64) ([]*domain.SyncLog, error)
	QueueStats(ctx context.Context) (*domain.QueueStats, error)
	Dashboard(ctx context.Context) (*domain.Dashboard, error)
	TestConnection(ctx context.Context, gatewayID int64) (*domain.GatewayConfig, *ports.ConnectionResult, error)
}

// WebhookLogReader lists the inbound webhook audit trail.
type WebhookLogReader interface {
	ListWebhookLogs(ctx context.Context, filter ports.WebhookLogFilter) ([]*domain.InboundWebhookLog, error)
}

// ClientWebhookAdmin manages merchant webhook endpoints.
type ClientWebhookAdmin interface {
	SendTest(ctx context.Context, configID int64) (*domain.ClientWebhookDelivery, error)
	Toggle(ctx context.Context, configID int64) (*domain.ClientWebhookConfig, error)
	Stats(ctx context.Context) (*domain.DeliveryStats, error)
}

// StatusSyncRequest is the optional body of POST /sync/status/{txn_id}.
type StatusSyncRequest struct {
	Force bool `json:"force"`
}

// RefundSyncRequest is the optional body of POST /sync/refund/{txn_id}.
type RefundSyncRequest struct {
	PgTxnID  *string `json:"pg_txn_id" validate:"omitempty,min=1,max=100"`
	Priority int     `json:"priority" validate:"omitempty,min=1,max=3"`
}

// SettlementSyncRequest is the optional body of POST /sync/settlement/{txn_id}.
type SettlementSyncRequest struct {
	Priority int `json:"priority" validate:"omitempty,min=1,max=3"`
}

type webhookLogQuery struct {
	GatewayCode string `validate:"omitempty,max=50"`
	TxnID       string `validate:"omitempty,max=100"`
	Limit       int    `validate:"min=1,max=500"`
}

// Handler serves the control API.
type Handler struct {
	sync     SyncService
	logs     WebhookLogReader
	webhooks ClientWebhookAdmin
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new control API handler
func NewHandler(sync SyncService, logs WebhookLogReader, webhooks ClientWebhookAdmin, logger *zap.Logger) *Handler {
	return &Handler{
		sync:     sync,
		logs:     logs,
		webhooks: webhooks,
		validate: validator.New(),
		logger:   logger,
	}
}

// Routes mounts the control API. Callers must run BearerAuth in front of it.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(auth.ScopeSyncWrite))
		r.Post("/sync/status/{txn_id}", h.SyncStatus)
		r.Post("/sync/refund/{txn_id}", h.SyncRefund)
		r.Post("/sync/settlement/{txn_id}", h.SyncSettlement)
		r.Post("/queue/{sync_id}/retry", h.RetryTask)
		r.Post("/configurations/{id}/test_connection", h.TestConnection)
		r.Post("/client-webhooks/{config_id}/test", h.TestClientWebhook)
		r.Post("/client-webhooks/{config_id}/toggle", h.ToggleClientWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(auth.ScopeSyncRead))
		r.Get("/queue/stats", h.QueueStats)
		r.Get("/queue/{sync_id}", h.GetTask)
		r.Get("/queue/{sync_id}/logs", h.ListSyncLogs)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/webhook-logs", h.ListWebhookLogs)
		r.Get("/client-webhooks/stats", h.ClientWebhookStats)
	})
}

// SyncStatus handles POST /sync/status/{txn_id}
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	txnID, ok := h.txnID(w, r)
	if !ok {
		return
	}
	var req StatusSyncRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sync.EnqueueStatus(r.Context(), txnID, req.Force)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("Status sync requested",
		zap.String("txn_id", txnID),
		zap.Bool("force", req.Force),
		zap.String("actor", auth.Actor(r.Context())),
	)
	h.respondQueued(w, txnID, "Status sync queued", res)
}

// SyncRefund handles POST /sync/refund/{txn_id}
func (h *Handler) SyncRefund(w http.ResponseWriter, r *http.Request) {
	txnID, ok := h.txnID(w, r)
	if !ok {
		return
	}
	var req RefundSyncRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sync.EnqueueRefund(r.Context(), gatewaysync.RefundRequest{
		TxnID:    txnID,
		PgTxnID:  req.PgTxnID,
		Priority: domain.Priority(req.Priority),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("Refund sync requested",
		zap.String("txn_id", txnID),
		zap.String("actor", auth.Actor(r.Context())),
	)
	h.respondQueued(w, txnID, "Refund sync queued", res)
}

// SyncSettlement handles POST /sync/settlement/{txn_id}
func (h *Handler) SyncSettlement(w http.ResponseWriter, r *http.Request) {
	txnID, ok := h.txnID(w, r)
	if !ok {
		return
	}
	var req SettlementSyncRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sync.EnqueueSettlement(r.Context(), gatewaysync.SettlementRequest{
		TxnID:    txnID,
		Priority: domain.Priority(req.Priority),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("Settlement sync requested",
		zap.String("txn_id", txnID),
		zap.String("actor", auth.Actor(r.Context())),
	)
	h.respondQueued(w, txnID, "Settlement sync queued", res)
}

// RetryTask handles POST /queue/{sync_id}/retry
func (h *Handler) RetryTask(w http.ResponseWriter, r *http.Request) {
	syncID, ok := h.int64Param(w, r, "sync_id")
	if !ok {
		return
	}

	task, err := h.sync.Retry(r.Context(), syncID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("Sync task retry requested",
		zap.Int64("sync_id", syncID),
		zap.String("actor", auth.Actor(r.Context())),
	)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Sync task queued for retry",
		"sync_id": task.SyncID,
		"state":   task.State,
	})
}

// GetTask handles GET /queue/{sync_id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	syncID, ok := h.int64Param(w, r, "sync_id")
	if !ok {
		return
	}
	task, err := h.sync.GetTask(r.Context(), syncID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, task)
}

// ListSyncLogs handles GET /queue/{sync_id}/logs
func (h *Handler) ListSyncLogs(w http.ResponseWriter, r *http.Request) {
	syncID, ok := h.int64Param(w, r, "sync_id")
	if !ok {
		return
	}
	logs, err := h.sync.ListLogs(r.Context(), syncID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*domain.SyncLog{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sync_id": syncID,
		"logs":    logs,
	})
}

// QueueStats handles GET /queue/stats
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sync.QueueStats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// Dashboard handles GET /dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.sync.Dashboard(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, dashboard)
}

// TestConnection handles POST /configurations/{id}/test_connection
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	gatewayID, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	cfg, result, err := h.sync.TestConnection(r.Context(), gatewayID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      result.Success,
		"gateway_code": cfg.GatewayCode,
		"status":       result.Status,
		"elapsed_ms":   result.ElapsedMS,
		"error":        result.Error,
	})
}

// ListWebhookLogs handles GET /webhook-logs
func (h *Handler) ListWebhookLogs(w http.ResponseWriter, r *http.Request) {
	q := webhookLogQuery{
		GatewayCode: r.URL.Query().Get("gateway_code"),
		TxnID:       r.URL.Query().Get("txn_id"),
		Limit:       defaultWebhookLogLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.respondMessage(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = limit
	}
	if err := h.validate.Struct(q); err != nil {
		h.respondMessage(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	logs, err := h.logs.ListWebhookLogs(r.Context(), ports.WebhookLogFilter{
		GatewayCode: q.GatewayCode,
		TxnID:       q.TxnID,
		Limit:       q.Limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*domain.InboundWebhookLog{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(logs),
		"logs":  logs,
	})
}

// TestClientWebhook handles POST /client-webhooks/{config_id}/test
func (h *Handler) TestClientWebhook(w http.ResponseWriter, r *http.Request) {
	configID, ok := h.int64Param(w, r, "config_id")
	if !ok {
		return
	}

	delivery, err := h.webhooks.SendTest(r.Context(), configID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	success := delivery.DeliveryStatus == domain.DeliveryStatusSuccess
	message := "Test webhook delivered"
	if !success {
		message = "Test webhook delivery failed"
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          success,
		"message":          message,
		"webhook_id":       delivery.WebhookID,
		"delivery_status":  delivery.DeliveryStatus,
		"http_status_code": delivery.HTTPStatusCode,
		"error_message":    delivery.ErrorMessage,
	})
}

// ToggleClientWebhook handles POST /client-webhooks/{config_id}/toggle
func (h *Handler) ToggleClientWebhook(w http.ResponseWriter, r *http.Request) {
	configID, ok := h.int64Param(w, r, "config_id")
	if !ok {
		return
	}

	cfg, err := h.webhooks.Toggle(r.Context(), configID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("Client webhook toggled",
		zap.Int64("config_id", configID),
		zap.Bool("is_active", cfg.IsActive),
		zap.String("actor", auth.Actor(r.Context())),
	)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"config_id": cfg.ConfigID,
		"is_active": cfg.IsActive,
	})
}

// ClientWebhookStats handles GET /client-webhooks/stats
func (h *Handler) ClientWebhookStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.webhooks.Stats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) txnID(w http.ResponseWriter, r *http.Request) (string, bool) {
	txnID := chi.URLParam(r, "txn_id")
	if err := h.validate.Var(txnID, "required,max=100"); err != nil {
		h.respondMessage(w, http.StatusBadRequest, "txn_id must be 1-100 characters")
		return "", false
	}
	return txnID, true
}

func (h *Handler) int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.respondMessage(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// decode reads an optional JSON body into dst and validates it. An empty
// body leaves dst at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		h.respondMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			h.respondMessage(w, http.StatusBadRequest, "invalid JSON body")
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondMessage(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid " + fe.Field() + ": failed " + fe.Tag() + " check"
	}
	return "invalid request"
}

func (h *Handler) respondQueued(w http.ResponseWriter, txnID, message string, res *gatewaysync.EnqueueResult) {
	if !res.Enqueued {
		message = "Sync already queued"
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  message,
		"txn_id":   txnID,
		"sync_id":  res.SyncID,
		"enqueued": res.Enqueued,
	})
}

// respondError maps domain errors onto HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidationError(err), domain.IsDomainError(err, domain.ErrorCodeTaskNotRetryable):
		status = http.StatusBadRequest
	case domain.IsDomainError(err, domain.ErrorCodeTaskConflict):
		status = http.StatusConflict
	case domain.IsNotFoundError(err), domain.IsConfigurationError(err):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Control API request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.respondMessage(w, status, "Internal server error")
		return
	}

	message := err.Error()
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	h.respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
		"code":    domain.GetErrorCode(err),
	})
}

func (h *Handler) respondMessage(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	if err := encoding.WriteJSON(w, status, body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
