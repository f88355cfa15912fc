// Package inbound ingests gateway callbacks: every request is audited,
// authenticated against the gateway's webhook secret, classified, applied to
// the transaction and followed by a confirmation probe.
package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/internal/services/gatewaysync"
	"github.com/kevin07696/gateway-sync/pkg/observability"
	"github.com/kevin07696/gateway-sync/pkg/signing"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"go.uber.org/zap"
)

// signatureHeaders are consulted in order; the first non-empty one wins.
var signatureHeaders = []string{"X-Signature", "Authorization", "Signature"}

// Enqueuer queues confirmation probes.
type Enqueuer interface {
	Enqueue(ctx context.Context, params domain.EnqueueParams, source string) (*gatewaysync.EnqueueResult, error)
}

// Request is one inbound POST as received by the HTTP layer.
type Request struct {
	Headers     http.Header
	Body        []byte
	GatewayCode string
	RemoteIP    string
}

// Response is the JSON answer returned to the gateway.
type Response struct {
	Body   map[string]interface{}
	Status int
}

// Receiver handles POST /webhooks/{gateway_code}.
type Receiver struct {
	gateways ports.GatewayRegistry
	txns     ports.TransactionStore
	logs     ports.WebhookLogStore
	enqueuer Enqueuer
	events   gatewaysync.EventPublisher
	clock    timeutil.Clock
	logger   *zap.Logger
}

// NewReceiver creates a Receiver. events may be nil.
func NewReceiver(
	gateways ports.GatewayRegistry,
	txns ports.TransactionStore,
	logs ports.WebhookLogStore,
	enqueuer Enqueuer,
	events gatewaysync.EventPublisher,
	clock timeutil.Clock,
	logger *zap.Logger,
) *Receiver {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Receiver{
		gateways: gateways,
		txns:     txns,
		logs:     logs,
		enqueuer: enqueuer,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// Receive audits, verifies and applies one callback. It never returns an
// error: every failure is expressed as a status code and a JSON body.
func (r *Receiver) Receive(ctx context.Context, req Request) (resp *Response) {
	start := time.Now()
	body := decodeBody(req.Body)

	entry := &domain.InboundWebhookLog{
		GatewayCode:    req.GatewayCode,
		WebhookType:    domain.WebhookTypeUnknown,
		RequestHeaders: flattenHeaders(req.Headers),
		RequestBody:    mustJSON(body),
		ResponseStatus: http.StatusOK,
		IPAddress:      req.RemoteIP,
	}
	if err := r.logs.CreateWebhookLog(ctx, entry); err != nil {
		r.logger.Error("Failed to create webhook log",
			zap.String("gateway", req.GatewayCode),
			zap.Error(err),
		)
		return r.respond(internalServerError())
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Webhook processing panicked",
				zap.String("gateway", req.GatewayCode),
				zap.Any("panic", p),
			)
			resp = r.fail(ctx, entry, start, fmt.Sprint(p))
		}
		observability.RecordInboundWebhook(req.GatewayCode, string(entry.WebhookType), resp.Status)
	}()

	cfg, err := r.gateways.GetActive(ctx, req.GatewayCode)
	if err != nil {
		if domain.IsConfigurationError(err) {
			entry.ResponseStatus = http.StatusNotFound
			entry.ResponseBody = mustJSON(map[string]interface{}{
				"error": fmt.Sprintf("Gateway %s not found or inactive", req.GatewayCode),
			})
			r.save(ctx, entry)
			return r.respond(http.StatusNotFound, map[string]interface{}{"error": "Gateway not found"})
		}
		return r.fail(ctx, entry, start, err.Error())
	}

	entry.SignatureValid = verifySignature(cfg, req.Headers, req.Body)
	entry.WebhookType = Classify(body)
	entry.TxnID, entry.PgTxnID = References(body)

	if !entry.SignatureValid {
		r.logger.Warn("Webhook signature rejected",
			zap.String("gateway", req.GatewayCode),
			zap.String("ip", req.RemoteIP),
		)
		entry.ResponseStatus = http.StatusUnauthorized
		entry.ResponseBody = mustJSON(map[string]interface{}{"error": "Invalid signature"})
		r.save(ctx, entry)
		return r.respond(http.StatusUnauthorized, map[string]interface{}{"error": "Invalid signature"})
	}

	result, err := r.process(ctx, cfg, body, entry.TxnID, entry.PgTxnID)
	if err != nil {
		return r.fail(ctx, entry, start, err.Error())
	}

	elapsed := time.Since(start).Milliseconds()
	entry.ProcessingTimeMS = &elapsed
	entry.Processed = true
	entry.ResponseBody = mustJSON(result)
	r.save(ctx, entry)

	r.logger.Info("Webhook processed",
		zap.String("gateway", req.GatewayCode),
		zap.String("type", string(entry.WebhookType)),
		zap.Int64("processing_time_ms", elapsed),
	)
	return r.respond(http.StatusOK, result)
}

// process applies a verified callback. Only infrastructure failures are
// returned as errors; payload problems are reported in the 200 body.
func (r *Receiver) process(ctx context.Context, cfg *domain.GatewayConfig, body map[string]interface{}, txnID, pgTxnID *string) (map[string]interface{}, error) {
	n, parseErr := Parse(body)
	if _, unknown := n.(UnknownNotification); unknown && parseErr == nil {
		return map[string]interface{}{"status": "received", "message": "Webhook processed but type unknown"}, nil
	}

	label := typeLabel(Classify(body))
	if txnID == nil {
		return map[string]interface{}{"error": "Transaction ID missing in webhook"}, nil
	}
	if parseErr != nil {
		return map[string]interface{}{"error": fmt.Sprintf("%s processing failed: %v", label, parseErr)}, nil
	}

	txn, err := r.txns.GetTransaction(ctx, *txnID)
	if err != nil && !domain.IsNotFoundError(err) {
		return nil, err
	}
	found := err == nil

	switch n := n.(type) {
	case PaymentNotification:
		if !found {
			return r.queueForMissing(ctx, cfg, *txnID, pgTxnID, domain.SyncKindStatus,
				"Transaction not found, queued for sync")
		}
		return r.applyPayment(ctx, cfg, txn, n, pgTxnID)
	case RefundNotification:
		if !found {
			return r.queueForMissing(ctx, cfg, *txnID, pgTxnID, domain.SyncKindRefund,
				"Transaction not found, queued for refund sync")
		}
		return r.applyRefund(ctx, cfg, txn, n, pgTxnID)
	case SettlementNotification:
		if !found {
			return map[string]interface{}{"status": "not_found", "message": "Transaction not found", "txn_id": *txnID}, nil
		}
		return r.applySettlement(ctx, txn, n)
	}
	return map[string]interface{}{"status": "received"}, nil
}

func (r *Receiver) applyPayment(ctx context.Context, cfg *domain.GatewayConfig, txn *domain.Transaction, n PaymentNotification, pgTxnID *string) (map[string]interface{}, error) {
	update := domain.StatusUpdate{
		Status:          n.Status,
		ResponseCode:    n.ResponseCode,
		ResponseMessage: n.ResponseMessage,
	}
	if err := r.txns.ApplyStatus(ctx, txn.TxnID, update, r.clock.Now()); err != nil {
		return nil, fmt.Errorf("apply payment status: %w", err)
	}
	previous := txn.Status
	update.Apply(txn)

	if txn.Status != previous {
		if event, ok := domain.PaymentEventFor(txn.Status); ok {
			r.publish(txn, event, map[string]interface{}{
				"txn_id":          txn.TxnID,
				"pg_txn_id":       pgTxnID,
				"status":          string(txn.Status),
				"previous_status": string(previous),
				"paid_amount":     txn.PaidAmount.String(),
				"source":          "gateway_webhook",
			})
		}
	}

	res, err := r.confirm(ctx, cfg, txn.TxnID, pgTxnID, domain.SyncKindStatus, domain.PriorityHigh)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":         "success",
		"message":        "Payment status updated",
		"txn_id":         txn.TxnID,
		"updated_status": string(txn.Status),
		"sync_id":        res.SyncID,
	}, nil
}

func (r *Receiver) applyRefund(ctx context.Context, cfg *domain.GatewayConfig, txn *domain.Transaction, n RefundNotification, pgTxnID *string) (map[string]interface{}, error) {
	update := n.Update(txn)
	if err := r.txns.ApplyRefund(ctx, txn.TxnID, update, r.clock.Now()); err != nil {
		return nil, fmt.Errorf("apply refund status: %w", err)
	}
	wasRefunded := txn.IsRefunded
	update.Apply(txn)

	if txn.IsRefunded && !wasRefunded {
		data := map[string]interface{}{"txn_id": txn.TxnID, "is_refunded": true}
		if txn.RefundedAmount != nil {
			data["refunded_amount"] = txn.RefundedAmount.String()
		}
		if txn.RefundStatusCode != nil {
			data["refund_status"] = *txn.RefundStatusCode
		}
		r.publish(txn, domain.EventRefundProcessed, data)
	}

	res, err := r.confirm(ctx, cfg, txn.TxnID, pgTxnID, domain.SyncKindRefund, domain.PriorityHigh)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "success",
		"message":     "Refund status updated",
		"txn_id":      txn.TxnID,
		"is_refunded": txn.IsRefunded,
		"sync_id":     res.SyncID,
	}, nil
}

func (r *Receiver) applySettlement(ctx context.Context, txn *domain.Transaction, n SettlementNotification) (map[string]interface{}, error) {
	update := n.Update(txn)
	if err := r.txns.ApplySettlement(ctx, txn.TxnID, update, r.clock.Now()); err != nil {
		return nil, fmt.Errorf("apply settlement status: %w", err)
	}
	wasSettled := txn.IsSettled
	update.Apply(txn)

	if txn.IsSettled && !wasSettled {
		data := map[string]interface{}{"txn_id": txn.TxnID, "is_settled": true}
		if txn.SettlementStatus != nil {
			data["settlement_status"] = *txn.SettlementStatus
		}
		r.publish(txn, domain.EventSettlementCompleted, data)
	}

	return map[string]interface{}{
		"status":     "success",
		"message":    "Settlement status updated",
		"txn_id":     txn.TxnID,
		"is_settled": txn.IsSettled,
	}, nil
}

// queueForMissing downgrades a callback for an unknown transaction to a
// regular-priority probe.
func (r *Receiver) queueForMissing(ctx context.Context, cfg *domain.GatewayConfig, txnID string, pgTxnID *string, kind domain.SyncKind, message string) (map[string]interface{}, error) {
	r.logger.Warn("Webhook for unknown transaction queued for sync",
		zap.String("gateway", cfg.GatewayCode),
		zap.String("txn_id", txnID),
		zap.String("kind", string(kind)),
	)
	res, err := r.confirm(ctx, cfg, txnID, pgTxnID, kind, domain.PriorityMedium)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":  "queued",
		"message": message,
		"txn_id":  txnID,
		"sync_id": res.SyncID,
	}, nil
}

func (r *Receiver) confirm(ctx context.Context, cfg *domain.GatewayConfig, txnID string, pgTxnID *string, kind domain.SyncKind, priority domain.Priority) (*gatewaysync.EnqueueResult, error) {
	return r.enqueuer.Enqueue(ctx, domain.EnqueueParams{
		TxnID:    txnID,
		PgTxnID:  pgTxnID,
		Kind:     kind,
		Priority: priority,
		RequestData: mustJSON(map[string]interface{}{
			"queued_by":    "gateway_webhook",
			"gateway_code": cfg.GatewayCode,
		}),
	}, gatewaysync.SourceWebhook)
}

func (r *Receiver) publish(txn *domain.Transaction, event domain.EventType, data map[string]interface{}) {
	if r.events == nil || txn.ClientID == "" {
		return
	}
	r.events.Publish(txn.ClientID, event, data)
}

func (r *Receiver) fail(ctx context.Context, entry *domain.InboundWebhookLog, start time.Time, msg string) *Response {
	r.logger.Error("Webhook processing error",
		zap.String("gateway", entry.GatewayCode),
		zap.String("error", msg),
	)
	elapsed := time.Since(start).Milliseconds()
	entry.ProcessingTimeMS = &elapsed
	entry.ResponseStatus = http.StatusInternalServerError
	entry.ResponseBody = mustJSON(map[string]interface{}{"error": msg})
	r.save(ctx, entry)
	return r.respond(internalServerError())
}

// save finalizes the audit row even when the request context is gone.
func (r *Receiver) save(ctx context.Context, entry *domain.InboundWebhookLog) {
	if err := r.logs.UpdateWebhookLog(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("Failed to update webhook log",
			zap.Int64("log_id", entry.LogID),
			zap.Error(err),
		)
	}
}

func (r *Receiver) respond(status int, body map[string]interface{}) *Response {
	return &Response{Status: status, Body: body}
}

func internalServerError() (int, map[string]interface{}) {
	return http.StatusInternalServerError, map[string]interface{}{"error": "Internal server error"}
}

// verifySignature accepts unsigned callbacks only when the gateway has no
// webhook secret.
func verifySignature(cfg *domain.GatewayConfig, headers http.Header, body []byte) bool {
	if !cfg.HasWebhookSecret() {
		return true
	}
	for _, name := range signatureHeaders {
		if sig := headers.Get(name); sig != "" {
			return signing.Verify(*cfg.WebhookSecret, body, sig)
		}
	}
	return false
}

// decodeBody parses a JSON object, keeping anything else as {"raw_body": ...}.
func decodeBody(raw []byte) map[string]interface{} {
	var body map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		return map[string]interface{}{"raw_body": strings.ToValidUTF8(string(raw), "")}
	}
	return body
}

func typeLabel(t domain.WebhookType) string {
	switch t {
	case domain.WebhookTypePayment:
		return "Payment status"
	case domain.WebhookTypeRefund:
		return "Refund status"
	case domain.WebhookTypeSettlement:
		return "Settlement status"
	}
	return "Webhook"
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return b
}
