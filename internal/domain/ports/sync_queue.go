package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
)

// BackoffFunc returns the retry delay after the given attempt number.
type BackoffFunc func(attempts int) time.Duration

// SyncQueueStore is the durable priority queue behind the engine. ClaimBatch
// is the only operation that moves rows from PENDING to PROCESSING and must be
// safe against concurrent claimers.
type SyncQueueStore interface {
	// Enqueue inserts a PENDING task unless one for (txn_id, kind) is already
	// PENDING or PROCESSING, in which case that task's id is returned with
	// enqueued=false.
	Enqueue(ctx context.Context, params domain.EnqueueParams) (syncID int64, enqueued bool, err error)

	// ClaimBatch locks up to limit due tasks ordered by (priority, created_at),
	// marks them PROCESSING and increments attempts.
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*domain.SyncTask, error)

	Complete(ctx context.Context, syncID int64, responseData json.RawMessage, now time.Time) error

	// Fail marks the task FAILED and schedules next_retry_at = now+backoff(attempts)
	// while attempts remain.
	Fail(ctx context.Context, syncID int64, errMsg string, backoff BackoffFunc, now time.Time) error

	// FailTerminal marks the task FAILED with no further automatic retries.
	FailTerminal(ctx context.Context, syncID int64, errMsg string, now time.Time) error

	// ResetForRetry returns a FAILED or COMPLETED task to PENDING with a fresh
	// attempt budget.
	ResetForRetry(ctx context.Context, syncID int64, now time.Time) (*domain.SyncTask, error)

	GetTask(ctx context.Context, syncID int64) (*domain.SyncTask, error)

	// ResetDueFailures flips due FAILED tasks back to PENDING.
	ResetDueFailures(ctx context.Context, now time.Time, limit int) (int, error)

	// FailStuck fails PROCESSING tasks not touched since cutoff.
	FailStuck(ctx context.Context, cutoff time.Time, errMsg string, backoff BackoffFunc, now time.Time) (int, error)
}

// StatsReader serves the read-only aggregates used by operators.
type StatsReader interface {
	QueueStats(ctx context.Context, now time.Time) (*domain.QueueStats, error)
	Dashboard(ctx context.Context, now time.Time) (*domain.Dashboard, error)
}
