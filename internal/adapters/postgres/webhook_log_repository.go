package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/gateway-sync/internal/converters"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

const (
	defaultWebhookLogLimit = 50
	maxWebhookLogLimit     = 500
)

// WebhookLogRepository persists gateway_webhook_logs.
type WebhookLogRepository struct {
	db ports.DBPort
}

// NewWebhookLogRepository creates a new inbound webhook log repository
func NewWebhookLogRepository(db ports.DBPort) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

// CreateWebhookLog writes the provisional row for a just-received callback.
func (r *WebhookLogRepository) CreateWebhookLog(ctx context.Context, log *domain.InboundWebhookLog) error {
	headers, err := marshalHeaders(log.RequestHeaders)
	if err != nil {
		return err
	}

	webhookType := log.WebhookType
	if webhookType == "" {
		webhookType = domain.WebhookTypeUnknown
	}

	err = r.db.GetDB().QueryRow(ctx, `
		INSERT INTO gateway_webhook_logs
			(gateway_code, webhook_type, txn_id, pg_txn_id, request_headers, request_body,
			 ip_address, signature_valid, processed, response_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING log_id, created_at`,
		log.GatewayCode, string(webhookType), log.TxnID, log.PgTxnID, headers, jsonbOrNull(log.RequestBody),
		log.IPAddress, log.SignatureValid, log.Processed, log.ResponseStatus,
	).Scan(&log.LogID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

// UpdateWebhookLog finalizes the row once the outcome is known.
func (r *WebhookLogRepository) UpdateWebhookLog(ctx context.Context, log *domain.InboundWebhookLog) error {
	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE gateway_webhook_logs
		SET webhook_type = $2, txn_id = $3, pg_txn_id = $4, signature_valid = $5,
		    processed = $6, response_status = $7, response_body = $8, processing_time_ms = $9
		WHERE log_id = $1`,
		log.LogID, string(log.WebhookType), log.TxnID, log.PgTxnID, log.SignatureValid,
		log.Processed, log.ResponseStatus, jsonbOrNull(log.ResponseBody), log.ProcessingTimeMS)
	if err != nil {
		return fmt.Errorf("update webhook log %d: %w", log.LogID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update webhook log %d: not found", log.LogID)
	}
	return nil
}

// ListWebhookLogs returns the newest rows matching the filter.
func (r *WebhookLogRepository) ListWebhookLogs(ctx context.Context, filter ports.WebhookLogFilter) ([]*domain.InboundWebhookLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.GatewayCode != "" {
		args = append(args, filter.GatewayCode)
		where = append(where, fmt.Sprintf("gateway_code = $%d", len(args)))
	}
	if filter.TxnID != "" {
		args = append(args, filter.TxnID)
		where = append(where, fmt.Sprintf("txn_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultWebhookLogLimit
	}
	if limit > maxWebhookLogLimit {
		limit = maxWebhookLogLimit
	}
	args = append(args, limit)

	query := `
		SELECT log_id, gateway_code, webhook_type, txn_id, pg_txn_id, request_headers, request_body,
		       ip_address, signature_valid, processed, response_status, response_body,
		       processing_time_ms, created_at
		FROM gateway_webhook_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, log_id DESC LIMIT $%d", len(args))

	rows, err := r.db.GetDB().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.InboundWebhookLog
	for rows.Next() {
		var (
			l             domain.InboundWebhookLog
			webhookType   string
			txnID         pgtype.Text
			pgTxnID       pgtype.Text
			headers, body []byte
			ipAddress     pgtype.Text
			respBody      []byte
			elapsed       pgtype.Int8
		)
		if err := rows.Scan(
			&l.LogID, &l.GatewayCode, &webhookType, &txnID, &pgTxnID, &headers, &body,
			&ipAddress, &l.SignatureValid, &l.Processed, &l.ResponseStatus, &respBody,
			&elapsed, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		l.WebhookType = domain.WebhookType(webhookType)
		l.TxnID = converters.TextPtr(txnID)
		l.PgTxnID = converters.TextPtr(pgTxnID)
		l.RequestHeaders = unmarshalHeaders(headers)
		l.RequestBody = rawOrNil(body)
		l.IPAddress = ipAddress.String
		l.ResponseBody = rawOrNil(respBody)
		l.ProcessingTimeMS = converters.Int8Ptr(elapsed)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
