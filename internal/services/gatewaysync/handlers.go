package gatewaysync

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/pkg/jsonfield"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"go.uber.org/zap"
)

// EventPublisher queues an outbound merchant notification without blocking.
type EventPublisher interface {
	Publish(clientID string, event domain.EventType, data map[string]interface{})
}

// Processor runs the STATUS, REFUND and SETTLEMENT handlers for claimed tasks.
type Processor struct {
	txns     ports.TransactionStore
	gateways ports.GatewayRegistry
	caller   ports.GatewayCaller
	logs     ports.SyncLogStore
	events   EventPublisher
	clock    timeutil.Clock
	logger   *zap.Logger
}

// NewProcessor creates a Processor. events may be nil when no merchant
// notifications are wanted. logs receives a row for attempts that fail before
// the gateway is called; the caller logs the rest.
func NewProcessor(
	txns ports.TransactionStore,
	gateways ports.GatewayRegistry,
	caller ports.GatewayCaller,
	logs ports.SyncLogStore,
	events EventPublisher,
	clock timeutil.Clock,
	logger *zap.Logger,
) *Processor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Processor{
		txns:     txns,
		gateways: gateways,
		caller:   caller,
		logs:     logs,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// Process executes one attempt of task. It never panics; unexpected failures
// come back as retryable "Internal error" results.
func (p *Processor) Process(ctx context.Context, task *domain.SyncTask) (result Result) {
	called := false
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Sync handler panicked",
				zap.Int64("sync_id", task.SyncID),
				zap.String("txn_id", task.TxnID),
				zap.Any("panic", r),
			)
			result = internalError(r)
		}
		if !called && result.Outcome != OutcomeSuccess {
			p.logUnsent(ctx, task, result.Error)
		}
	}()

	txn, err := p.txns.GetTransaction(ctx, task.TxnID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return Terminal(fmt.Sprintf("Transaction %s not found", task.TxnID))
		}
		return internalError(err)
	}

	cfg, err := p.gateways.GetActive(ctx, txn.PgName)
	if err != nil {
		if domain.IsConfigurationError(err) {
			return Terminal(fmt.Sprintf("Gateway configuration not found for transaction %s", task.TxnID))
		}
		return internalError(err)
	}

	endpoint, err := cfg.EndpointFor(task.Kind)
	if err != nil {
		return Terminal(fmt.Sprintf("%s: %v", cfg.GatewayCode, err))
	}

	called = true
	resp, err := p.caller.Call(ctx, cfg, ports.GatewayRequest{
		SyncID:    task.SyncID,
		Operation: task.Kind.Operation(),
		Endpoint:  endpoint,
		Body:      requestBody(task, txn),
	})
	if err != nil {
		p.logger.Warn("Gateway call failed",
			zap.Int64("sync_id", task.SyncID),
			zap.String("txn_id", task.TxnID),
			zap.String("gateway", cfg.GatewayCode),
			zap.Int("attempt", task.Attempts),
			zap.Error(err),
		)
		return Retryable(err.Error())
	}

	payload := resp.JSON
	if payload == nil {
		payload = map[string]interface{}{}
	}

	switch task.Kind {
	case domain.SyncKindStatus:
		err = p.applyStatus(ctx, txn, payload)
	case domain.SyncKindRefund:
		err = p.applyRefund(ctx, txn, payload)
	case domain.SyncKindSettlement:
		err = p.applySettlement(ctx, txn, payload)
	default:
		return Terminal(fmt.Sprintf("unknown sync kind %q", task.Kind))
	}
	if err != nil {
		return internalError(err)
	}

	p.logger.Info("Sync task completed",
		zap.Int64("sync_id", task.SyncID),
		zap.String("txn_id", task.TxnID),
		zap.String("kind", string(task.Kind)),
		zap.Int64("response_time_ms", resp.ElapsedMS),
	)
	return Success(jsonfield.RawBody(resp.Body))
}

// logUnsent records an attempt that ended before any request was sent.
func (p *Processor) logUnsent(ctx context.Context, task *domain.SyncTask, msg string) {
	if p.logs == nil {
		return
	}
	entry := &domain.SyncLog{
		SyncID:         task.SyncID,
		Operation:      task.Kind.Operation(),
		RequestMethod:  http.MethodPost,
		RequestHeaders: map[string]string{},
		ErrorMessage:   &msg,
	}
	if err := p.logs.CreateSyncLog(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Error("Failed to write sync log",
			zap.Int64("sync_id", task.SyncID),
			zap.Error(err),
		)
	}
}

func requestBody(task *domain.SyncTask, txn *domain.Transaction) map[string]interface{} {
	pgTxnID := task.PgTxnID
	if pgTxnID == nil {
		pgTxnID = txn.PgTxnID
	}
	body := map[string]interface{}{
		"txn_id":    task.TxnID,
		"pg_txn_id": pgTxnID,
	}
	if task.Kind == domain.SyncKindSettlement {
		body["operation"] = "settlement_status"
	}
	return body
}

func (p *Processor) applyStatus(ctx context.Context, txn *domain.Transaction, payload map[string]interface{}) error {
	var update domain.StatusUpdate
	if s, ok := jsonfield.String(payload, "status"); ok {
		update.Status = domain.TransactionStatus(strings.ToUpper(strings.TrimSpace(*s)))
	}
	update.ResponseCode = jsonfield.FirstString(payload, "pg_response_code", "response_code")
	update.ResponseMessage = jsonfield.FirstString(payload, "resp_msg", "message")

	if update.Status == "" && update.ResponseCode == nil && update.ResponseMessage == nil {
		return nil
	}
	if err := p.txns.ApplyStatus(ctx, txn.TxnID, update, p.clock.Now()); err != nil {
		return fmt.Errorf("apply status: %w", err)
	}

	if update.Status == "" || update.Status == txn.Status {
		return nil
	}
	if event, ok := domain.PaymentEventFor(update.Status); ok {
		p.publish(txn, event, map[string]interface{}{
			"txn_id":          txn.TxnID,
			"pg_txn_id":       txn.PgTxnID,
			"status":          string(update.Status),
			"previous_status": string(txn.Status),
			"paid_amount":     txn.PaidAmount.String(),
		})
	}
	return nil
}

// applyRefund only touches the refund columns when the gateway reports a
// refund_status at all.
func (p *Processor) applyRefund(ctx context.Context, txn *domain.Transaction, payload map[string]interface{}) error {
	code, ok := jsonfield.String(payload, "refund_status")
	if !ok {
		return nil
	}

	refunded, _ := jsonfield.Bool(payload, "is_refunded")
	update := domain.RefundUpdate{
		RefundStatusCode: code,
		IsRefunded:       refunded,
		RefundMessage:    jsonfield.FirstString(payload, "refund_message"),
	}
	amount, err := jsonfield.Decimal(payload, "refunded_amount")
	if err != nil {
		return err
	}
	update.RefundedAmount = amount
	if update.IsRefunded {
		if update.RefundedDate, err = jsonfield.Time(payload, "refunded_date"); err != nil {
			return err
		}
	}

	if err := p.txns.ApplyRefund(ctx, txn.TxnID, update, p.clock.Now()); err != nil {
		return fmt.Errorf("apply refund: %w", err)
	}

	data := map[string]interface{}{
		"txn_id":        txn.TxnID,
		"refund_status": *code,
		"is_refunded":   update.IsRefunded,
	}
	if amount != nil {
		data["refunded_amount"] = amount.String()
	}
	switch {
	case update.IsRefunded && !txn.IsRefunded:
		p.publish(txn, domain.EventRefundProcessed, data)
	case isRefundRejection(*code) && !sameString(txn.RefundStatusCode, *code):
		p.publish(txn, domain.EventRefundFailed, data)
	}
	return nil
}

func (p *Processor) applySettlement(ctx context.Context, txn *domain.Transaction, payload map[string]interface{}) error {
	status, ok := jsonfield.String(payload, "settlement_status")
	if !ok {
		return nil
	}

	settled, _ := jsonfield.Bool(payload, "is_settled")
	update := domain.SettlementUpdate{
		SettlementStatus: status,
		IsSettled:        settled,
	}
	if update.IsSettled {
		var err error
		if update.SettlementDate, err = jsonfield.Time(payload, "settlement_date"); err != nil {
			return err
		}
	}

	if err := p.txns.ApplySettlement(ctx, txn.TxnID, update, p.clock.Now()); err != nil {
		return fmt.Errorf("apply settlement: %w", err)
	}

	if update.IsSettled && !txn.IsSettled {
		data := map[string]interface{}{
			"txn_id":            txn.TxnID,
			"settlement_status": *status,
			"is_settled":        true,
		}
		if update.SettlementDate != nil {
			data["settlement_date"] = timeutil.FormatISO(*update.SettlementDate)
		}
		p.publish(txn, domain.EventSettlementCompleted, data)
	}
	return nil
}

func (p *Processor) publish(txn *domain.Transaction, event domain.EventType, data map[string]interface{}) {
	if p.events == nil || txn.ClientID == "" {
		return
	}
	p.events.Publish(txn.ClientID, event, data)
}

func isRefundRejection(code string) bool {
	switch strings.ToUpper(code) {
	case "FAILED", "REJECTED":
		return true
	}
	return false
}

func sameString(p *string, s string) bool {
	return p != nil && *p == s
}
