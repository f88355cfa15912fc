package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/gateway-sync/internal/converters"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

// SyncLogRepository appends to gateway_sync_logs.
type SyncLogRepository struct {
	db ports.DBPort
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(db ports.DBPort) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// CreateSyncLog inserts the row and fills LogID and CreatedAt.
func (r *SyncLogRepository) CreateSyncLog(ctx context.Context, log *domain.SyncLog) error {
	reqHeaders, err := marshalHeaders(log.RequestHeaders)
	if err != nil {
		return err
	}
	respHeaders, err := marshalHeaders(log.ResponseHeaders)
	if err != nil {
		return err
	}

	err = r.db.GetDB().QueryRow(ctx, `
		INSERT INTO gateway_sync_logs
			(sync_queue_id, operation, request_url, request_method, request_headers, request_body,
			 response_status, response_headers, response_body, response_time_ms, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING log_id, created_at`,
		log.SyncID, log.Operation, log.RequestURL, log.RequestMethod, reqHeaders, jsonbOrNull(log.RequestBody),
		log.ResponseStatus, respHeaders, jsonbOrNull(log.ResponseBody), log.ResponseTimeMS, log.Success, log.ErrorMessage,
	).Scan(&log.LogID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sync log for task %d: %w", log.SyncID, err)
	}
	return nil
}

// ListSyncLogs returns the attempts of one task in order.
func (r *SyncLogRepository) ListSyncLogs(ctx context.Context, syncID int64) ([]*domain.SyncLog, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		SELECT log_id, sync_queue_id, operation, request_url, request_method, request_headers,
		       request_body, response_status, response_headers, response_body, response_time_ms,
		       success, error_message, created_at
		FROM gateway_sync_logs
		WHERE sync_queue_id = $1
		ORDER BY created_at, log_id`, syncID)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.SyncLog
	for rows.Next() {
		var (
			l                       domain.SyncLog
			reqHeaders, respHeaders []byte
			reqBody, respBody       []byte
			status                  pgtype.Int4
			elapsed                 pgtype.Int8
			errMsg                  pgtype.Text
		)
		if err := rows.Scan(
			&l.LogID, &l.SyncID, &l.Operation, &l.RequestURL, &l.RequestMethod, &reqHeaders,
			&reqBody, &status, &respHeaders, &respBody, &elapsed,
			&l.Success, &errMsg, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		l.RequestHeaders = unmarshalHeaders(reqHeaders)
		l.ResponseHeaders = unmarshalHeaders(respHeaders)
		l.RequestBody = rawOrNil(reqBody)
		l.ResponseBody = rawOrNil(respBody)
		l.ResponseStatus = converters.Int4Ptr(status)
		l.ResponseTimeMS = converters.Int8Ptr(elapsed)
		l.ErrorMessage = converters.TextPtr(errMsg)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
