package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/gateway-sync/internal/converters"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

const syncTaskColumns = `sync_id, txn_id, pg_txn_id, sync_type, priority, status, attempts,
	max_attempts, next_retry_at, request_data, response_data, error_message,
	created_at, updated_at, processed_at`

// retryableFailure selects FAILED rows (aliased q) that may be picked up again:
// attempts left, backoff elapsed, no active sibling for the same (txn_id, kind)
// and no newer retryable sibling.
const retryableFailure = `q.status = 'FAILED'
	AND q.attempts < q.max_attempts
	AND q.next_retry_at IS NOT NULL
	AND q.next_retry_at <= $1
	AND NOT EXISTS (
		SELECT 1 FROM gateway_sync_queue o
		WHERE o.txn_id = q.txn_id
		  AND o.sync_type = q.sync_type
		  AND o.sync_id <> q.sync_id
		  AND (o.status IN ('PENDING', 'PROCESSING')
		       OR (o.status = 'FAILED' AND o.attempts < o.max_attempts AND o.sync_id > q.sync_id))
	)`

// SyncQueueRepository implements ports.SyncQueueStore on gateway_sync_queue.
type SyncQueueRepository struct {
	db ports.DBPort
}

// NewSyncQueueRepository creates a new sync queue repository
func NewSyncQueueRepository(db ports.DBPort) *SyncQueueRepository {
	return &SyncQueueRepository{db: db}
}

func scanSyncTask(row pgx.Row) (*domain.SyncTask, error) {
	var (
		t            domain.SyncTask
		pgTxnID      pgtype.Text
		kind, state  string
		priority     int16
		nextRetryAt  pgtype.Timestamptz
		requestData  []byte
		responseData []byte
		errorMessage pgtype.Text
		processedAt  pgtype.Timestamptz
	)

	err := row.Scan(
		&t.SyncID, &t.TxnID, &pgTxnID, &kind, &priority, &state, &t.Attempts,
		&t.MaxAttempts, &nextRetryAt, &requestData, &responseData, &errorMessage,
		&t.CreatedAt, &t.UpdatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	t.PgTxnID = converters.TextPtr(pgTxnID)
	t.Kind = domain.SyncKind(kind)
	t.State = domain.SyncState(state)
	t.Priority = domain.Priority(priority)
	t.NextRetryAt = converters.TimePtr(nextRetryAt)
	t.RequestData = rawOrNil(requestData)
	t.ResponseData = rawOrNil(responseData)
	t.ErrorMessage = converters.TextPtr(errorMessage)
	t.ProcessedAt = converters.TimePtr(processedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	return &t, nil
}

func collectSyncTasks(rows pgx.Rows) ([]*domain.SyncTask, error) {
	defer rows.Close()

	var tasks []*domain.SyncTask
	for rows.Next() {
		t, err := scanSyncTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Enqueue inserts a PENDING row unless the (txn_id, kind) slot is taken. The
// partial unique index settles concurrent inserts; the loser reads the winner.
func (r *SyncQueueRepository) Enqueue(ctx context.Context, params domain.EnqueueParams) (int64, bool, error) {
	if id, ok, err := r.activeID(ctx, r.db.GetDB(), params.TxnID, params.Kind); err != nil {
		return 0, false, err
	} else if ok {
		return id, false, nil
	}

	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	var pgTxnID pgtype.Text
	if params.PgTxnID != nil {
		pgTxnID = converters.Text(*params.PgTxnID)
	}

	var syncID int64
	err := r.db.GetDB().QueryRow(ctx, `
		INSERT INTO gateway_sync_queue
			(txn_id, pg_txn_id, sync_type, priority, status, attempts, max_attempts, request_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', 0, $5, $6, NOW(), NOW())
		ON CONFLICT (txn_id, sync_type) WHERE status IN ('PENDING', 'PROCESSING') DO NOTHING
		RETURNING sync_id`,
		params.TxnID, pgTxnID, string(params.Kind), int16(params.Priority), maxAttempts, jsonbOrNull(params.RequestData),
	).Scan(&syncID)

	if errors.Is(err, pgx.ErrNoRows) {
		id, ok, err := r.activeID(ctx, r.db.GetDB(), params.TxnID, params.Kind)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, fmt.Errorf("enqueue %s/%s: conflicting task vanished", params.TxnID, params.Kind)
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert sync task: %w", err)
	}

	return syncID, true, nil
}

func (r *SyncQueueRepository) activeID(ctx context.Context, q ports.DBTX, txnID string, kind domain.SyncKind) (int64, bool, error) {
	var id int64
	err := q.QueryRow(ctx, `
		SELECT sync_id FROM gateway_sync_queue
		WHERE txn_id = $1 AND sync_type = $2 AND status IN ('PENDING', 'PROCESSING')
		LIMIT 1`, txnID, string(kind)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find active sync task: %w", err)
	}
	return id, true, nil
}

// ClaimBatch moves up to limit due rows to PROCESSING in one statement.
func (r *SyncQueueRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*domain.SyncTask, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		WITH due AS (
			SELECT q.sync_id FROM gateway_sync_queue q
			WHERE q.attempts < q.max_attempts
			  AND (q.status = 'PENDING' OR (`+retryableFailure+`))
			ORDER BY q.priority, q.created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE gateway_sync_queue t
		SET status = 'PROCESSING', attempts = t.attempts + 1, updated_at = $1
		FROM due
		WHERE t.sync_id = due.sync_id
		RETURNING `+prefixed("t", syncTaskColumns), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim sync tasks: %w", err)
	}

	tasks, err := collectSyncTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("claim sync tasks: %w", err)
	}

	// RETURNING does not keep the CTE order
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// Complete records a successful probe.
func (r *SyncQueueRepository) Complete(ctx context.Context, syncID int64, responseData json.RawMessage, now time.Time) error {
	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE gateway_sync_queue
		SET status = 'COMPLETED', response_data = $2, error_message = NULL,
		    next_retry_at = NULL, processed_at = $3, updated_at = $3
		WHERE sync_id = $1`, syncID, jsonbOrNull(responseData), now)
	if err != nil {
		return fmt.Errorf("complete sync task %d: %w", syncID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	return nil
}

// Fail records a retryable failure and schedules the next attempt.
func (r *SyncQueueRepository) Fail(ctx context.Context, syncID int64, errMsg string, backoff ports.BackoffFunc, now time.Time) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var attempts, maxAttempts int
		err := tx.QueryRow(ctx, `
			SELECT attempts, max_attempts FROM gateway_sync_queue
			WHERE sync_id = $1 FOR UPDATE`, syncID).Scan(&attempts, &maxAttempts)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
		}
		if err != nil {
			return fmt.Errorf("lock sync task %d: %w", syncID, err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE gateway_sync_queue
			SET status = 'FAILED', error_message = $2, next_retry_at = $3, updated_at = $4
			WHERE sync_id = $1`, syncID, errMsg, nextRetry(attempts, maxAttempts, backoff, now), now)
		if err != nil {
			return fmt.Errorf("fail sync task %d: %w", syncID, err)
		}
		return nil
	})
}

// FailTerminal exhausts the attempt budget so nothing retries the task.
func (r *SyncQueueRepository) FailTerminal(ctx context.Context, syncID int64, errMsg string, now time.Time) error {
	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE gateway_sync_queue
		SET status = 'FAILED', attempts = max_attempts, error_message = $2,
		    next_retry_at = NULL, updated_at = $3
		WHERE sync_id = $1`, syncID, errMsg, now)
	if err != nil {
		return fmt.Errorf("fail sync task %d: %w", syncID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	return nil
}

// ResetForRetry is the operator retry: FAILED or COMPLETED back to PENDING with
// attempts cleared.
func (r *SyncQueueRepository) ResetForRetry(ctx context.Context, syncID int64, now time.Time) (*domain.SyncTask, error) {
	var task *domain.SyncTask
	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := scanSyncTask(tx.QueryRow(ctx,
			`SELECT `+syncTaskColumns+` FROM gateway_sync_queue WHERE sync_id = $1 FOR UPDATE`, syncID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
		}
		if err != nil {
			return fmt.Errorf("lock sync task %d: %w", syncID, err)
		}
		if !current.CanBeReset() {
			return domain.ErrTaskNotRetryable.WithDetail("state", string(current.State))
		}

		task, err = scanSyncTask(tx.QueryRow(ctx, `
			UPDATE gateway_sync_queue
			SET status = 'PENDING', attempts = 0, next_retry_at = NULL,
			    error_message = NULL, processed_at = NULL, updated_at = $2
			WHERE sync_id = $1
			RETURNING `+syncTaskColumns, syncID, now))
		if isUniqueViolation(err) {
			return domain.ErrTaskConflict.WithDetail("sync_id", syncID)
		}
		if err != nil {
			return fmt.Errorf("reset sync task %d: %w", syncID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask loads one row.
func (r *SyncQueueRepository) GetTask(ctx context.Context, syncID int64) (*domain.SyncTask, error) {
	task, err := scanSyncTask(r.db.GetDB().QueryRow(ctx,
		`SELECT `+syncTaskColumns+` FROM gateway_sync_queue WHERE sync_id = $1`, syncID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	if err != nil {
		return nil, fmt.Errorf("get sync task %d: %w", syncID, err)
	}
	return task, nil
}

// ResetDueFailures flips due FAILED rows back to PENDING for the next claim.
func (r *SyncQueueRepository) ResetDueFailures(ctx context.Context, now time.Time, limit int) (int, error) {
	tag, err := r.db.GetDB().Exec(ctx, `
		WITH due AS (
			SELECT q.sync_id FROM gateway_sync_queue q
			WHERE `+retryableFailure+`
			ORDER BY q.priority, q.next_retry_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE gateway_sync_queue t
		SET status = 'PENDING', next_retry_at = NULL, updated_at = $1
		FROM due
		WHERE t.sync_id = due.sync_id`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("reset due failures: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FailStuck fails PROCESSING rows whose worker stopped updating them.
func (r *SyncQueueRepository) FailStuck(ctx context.Context, cutoff time.Time, errMsg string, backoff ports.BackoffFunc, now time.Time) (int, error) {
	var failed int
	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT sync_id, attempts, max_attempts FROM gateway_sync_queue
			WHERE status = 'PROCESSING' AND updated_at < $1
			FOR UPDATE SKIP LOCKED`, cutoff)
		if err != nil {
			return fmt.Errorf("find stuck tasks: %w", err)
		}

		type stuck struct {
			syncID      int64
			attempts    int
			maxAttempts int
		}
		var found []stuck
		for rows.Next() {
			var s stuck
			if err := rows.Scan(&s.syncID, &s.attempts, &s.maxAttempts); err != nil {
				rows.Close()
				return fmt.Errorf("scan stuck task: %w", err)
			}
			found = append(found, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("find stuck tasks: %w", err)
		}
		if len(found) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, s := range found {
			batch.Queue(`
				UPDATE gateway_sync_queue
				SET status = 'FAILED', error_message = $2, next_retry_at = $3, updated_at = $4
				WHERE sync_id = $1`, s.syncID, errMsg, nextRetry(s.attempts, s.maxAttempts, backoff, now), now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("fail stuck tasks: %w", err)
		}
		failed = len(found)
		return nil
	})
	return failed, err
}

func nextRetry(attempts, maxAttempts int, backoff ports.BackoffFunc, now time.Time) pgtype.Timestamptz {
	if attempts >= maxAttempts {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: now.Add(backoff(attempts)), Valid: true}
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
