package gatewaysync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/pkg/observability"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"go.uber.org/zap"
)

// Enqueue sources, used for request_data and metrics labels.
const (
	SourceAPI          = "api"
	SourceWebhook      = "webhook"
	SourcePendingProbe = "pending_probe"
)

// Notifier wakes the dispatcher after new work was queued.
type Notifier interface {
	Notify()
}

// EnqueueResult is returned by every enqueue call. Enqueued is false when an
// active task for the same transaction and kind already existed.
type EnqueueResult struct {
	SyncID   int64 `json:"sync_id"`
	Enqueued bool  `json:"enqueued"`
}

// RefundRequest asks for a refund status probe.
type RefundRequest struct {
	PgTxnID  *string
	TxnID    string
	Priority domain.Priority
}

// SettlementRequest asks for a settlement status probe.
type SettlementRequest struct {
	TxnID    string
	Priority domain.Priority
}

// Service is the control surface of the engine: enqueueing probes, operator
// retries and the read-only views.
type Service struct {
	queue       ports.SyncQueueStore
	stats       ports.StatsReader
	logs        ports.SyncLogStore
	gateways    ports.GatewayRegistry
	caller      ports.GatewayCaller
	notifier    Notifier
	clock       timeutil.Clock
	logger      *zap.Logger
	maxAttempts int
}

// NewService creates the sync service. notifier may be nil.
func NewService(
	queue ports.SyncQueueStore,
	stats ports.StatsReader,
	logs ports.SyncLogStore,
	gateways ports.GatewayRegistry,
	caller ports.GatewayCaller,
	notifier Notifier,
	clock timeutil.Clock,
	maxAttempts int,
	logger *zap.Logger,
) *Service {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	return &Service{
		queue:       queue,
		stats:       stats,
		logs:        logs,
		gateways:    gateways,
		caller:      caller,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Enqueue validates params and inserts a task unless an active one exists.
func (s *Service) Enqueue(ctx context.Context, params domain.EnqueueParams, source string) (*EnqueueResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = s.maxAttempts
	}

	syncID, enqueued, err := s.queue.Enqueue(ctx, params)
	if err != nil {
		s.logger.Error("Failed to enqueue sync task",
			zap.String("txn_id", params.TxnID),
			zap.String("kind", string(params.Kind)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("enqueue %s for %s: %w", params.Kind, params.TxnID, err)
	}
	observability.RecordEnqueue(string(params.Kind), source, enqueued)

	if enqueued {
		s.logger.Info("Sync task queued",
			zap.Int64("sync_id", syncID),
			zap.String("txn_id", params.TxnID),
			zap.String("kind", string(params.Kind)),
			zap.Int("priority", int(params.Priority)),
			zap.String("source", source),
		)
		if s.notifier != nil {
			s.notifier.Notify()
		}
	} else {
		s.logger.Debug("Sync task already active",
			zap.Int64("sync_id", syncID),
			zap.String("txn_id", params.TxnID),
			zap.String("kind", string(params.Kind)),
		)
	}

	return &EnqueueResult{SyncID: syncID, Enqueued: enqueued}, nil
}

// EnqueueStatus queues an operator-requested STATUS probe at priority 1. The
// force flag is recorded in request_data.
func (s *Service) EnqueueStatus(ctx context.Context, txnID string, force bool) (*EnqueueResult, error) {
	return s.Enqueue(ctx, domain.EnqueueParams{
		TxnID:       txnID,
		Kind:        domain.SyncKindStatus,
		Priority:    domain.PriorityHigh,
		RequestData: mustJSON(map[string]interface{}{"immediate_sync": true, "force": force}),
	}, SourceAPI)
}

// EnqueueRefund queues a REFUND probe, priority 1 unless specified.
func (s *Service) EnqueueRefund(ctx context.Context, req RefundRequest) (*EnqueueResult, error) {
	if req.Priority == 0 {
		req.Priority = domain.PriorityHigh
	}
	return s.Enqueue(ctx, domain.EnqueueParams{
		TxnID:       req.TxnID,
		PgTxnID:     req.PgTxnID,
		Kind:        domain.SyncKindRefund,
		Priority:    req.Priority,
		RequestData: mustJSON(map[string]interface{}{"queued_by": "manual_api_call"}),
	}, SourceAPI)
}

// EnqueueSettlement queues a SETTLEMENT probe, priority 2 unless specified.
func (s *Service) EnqueueSettlement(ctx context.Context, req SettlementRequest) (*EnqueueResult, error) {
	if req.Priority == 0 {
		req.Priority = domain.PriorityMedium
	}
	return s.Enqueue(ctx, domain.EnqueueParams{
		TxnID:       req.TxnID,
		Kind:        domain.SyncKindSettlement,
		Priority:    req.Priority,
		RequestData: mustJSON(map[string]interface{}{"queued_by": "manual_api_call"}),
	}, SourceAPI)
}

// Retry returns a FAILED or COMPLETED task to PENDING with a fresh attempt
// budget.
func (s *Service) Retry(ctx context.Context, syncID int64) (*domain.SyncTask, error) {
	task, err := s.queue.ResetForRetry(ctx, syncID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sync task reset for retry",
		zap.Int64("sync_id", syncID),
		zap.String("txn_id", task.TxnID),
		zap.String("kind", string(task.Kind)),
	)
	if s.notifier != nil {
		s.notifier.Notify()
	}
	return task, nil
}

// GetTask returns one queue row.
func (s *Service) GetTask(ctx context.Context, syncID int64) (*domain.SyncTask, error) {
	return s.queue.GetTask(ctx, syncID)
}

// ListLogs returns every gateway attempt recorded for a task.
func (s *Service) ListLogs(ctx context.Context, syncID int64) ([]*domain.SyncLog, error) {
	if _, err := s.queue.GetTask(ctx, syncID); err != nil {
		return nil, err
	}
	return s.logs.ListSyncLogs(ctx, syncID)
}

// QueueStats returns the queue breakdown served by GET /queue/stats.
func (s *Service) QueueStats(ctx context.Context) (*domain.QueueStats, error) {
	return s.stats.QueueStats(ctx, s.clock.Now())
}

// Dashboard returns the operator dashboard.
func (s *Service) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	return s.stats.Dashboard(ctx, s.clock.Now())
}

// TestConnection checks that a configured gateway answers its api_endpoint.
func (s *Service) TestConnection(ctx context.Context, gatewayID int64) (*domain.GatewayConfig, *ports.ConnectionResult, error) {
	cfg, err := s.gateways.GetByID(ctx, gatewayID)
	if err != nil {
		return nil, nil, err
	}
	result := s.caller.TestConnection(ctx, cfg)
	s.logger.Info("Gateway connection tested",
		zap.String("gateway", cfg.GatewayCode),
		zap.Bool("success", result.Success),
		zap.Int("status", result.Status),
		zap.Int64("elapsed_ms", result.ElapsedMS),
	)
	return cfg, result, nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
