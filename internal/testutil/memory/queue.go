// Package memory provides in-memory implementations of the domain ports for
// service tests. They follow the Postgres repositories' semantics closely
// enough that dedup, claim ordering and retry rules hold without a database.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

// SyncQueue implements ports.SyncQueueStore and ports.StatsReader.
type SyncQueue struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	tasks  map[int64]*domain.SyncTask
	nextID int64
}

var (
	_ ports.SyncQueueStore = (*SyncQueue)(nil)
	_ ports.StatsReader    = (*SyncQueue)(nil)
)

// NewSyncQueue creates an empty queue stamping rows with clock.
func NewSyncQueue(clock timeutil.Clock) *SyncQueue {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyncQueue{clock: clock, tasks: make(map[int64]*domain.SyncTask)}
}

func copyTask(t *domain.SyncTask) *domain.SyncTask {
	c := *t
	return &c
}

func (q *SyncQueue) activeLocked(txnID string, kind domain.SyncKind) *domain.SyncTask {
	for _, t := range q.tasks {
		if t.TxnID == txnID && t.Kind == kind && t.IsActive() {
			return t
		}
	}
	return nil
}

// Enqueue implements ports.SyncQueueStore.
func (q *SyncQueue) Enqueue(ctx context.Context, params domain.EnqueueParams) (int64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t := q.activeLocked(params.TxnID, params.Kind); t != nil {
		return t.SyncID, false, nil
	}

	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	q.nextID++
	now := q.clock.Now()
	q.tasks[q.nextID] = &domain.SyncTask{
		SyncID:      q.nextID,
		TxnID:       params.TxnID,
		PgTxnID:     params.PgTxnID,
		Kind:        params.Kind,
		Priority:    params.Priority,
		State:       domain.SyncStatePending,
		MaxAttempts: maxAttempts,
		RequestData: params.RequestData,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return q.nextID, true, nil
}

// retryableLocked mirrors the Postgres retryableFailure predicate.
func (q *SyncQueue) retryableLocked(t *domain.SyncTask, now time.Time) bool {
	if !t.IsDueForRetry(now) {
		return false
	}
	for _, o := range q.tasks {
		if o.SyncID == t.SyncID || o.TxnID != t.TxnID || o.Kind != t.Kind {
			continue
		}
		if o.IsActive() {
			return false
		}
		if o.State == domain.SyncStateFailed && o.Attempts < o.MaxAttempts && o.SyncID > t.SyncID {
			return false
		}
	}
	return true
}

func (q *SyncQueue) sortedLocked() []*domain.SyncTask {
	all := make([]*domain.SyncTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority < all[j].Priority
		}
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].SyncID < all[j].SyncID
	})
	return all
}

// ClaimBatch implements ports.SyncQueueStore.
func (q *SyncQueue) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*domain.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []*domain.SyncTask
	for _, t := range q.sortedLocked() {
		if len(claimed) >= limit {
			break
		}
		if t.Attempts >= t.MaxAttempts {
			continue
		}
		if t.State != domain.SyncStatePending && !q.retryableLocked(t, now) {
			continue
		}
		t.State = domain.SyncStateProcessing
		t.Attempts++
		t.UpdatedAt = now
		claimed = append(claimed, copyTask(t))
	}
	return claimed, nil
}

// Complete implements ports.SyncQueueStore.
func (q *SyncQueue) Complete(ctx context.Context, syncID int64, responseData json.RawMessage, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[syncID]
	if !ok {
		return domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	t.State = domain.SyncStateCompleted
	t.ResponseData = responseData
	t.ErrorMessage = nil
	t.NextRetryAt = nil
	t.ProcessedAt = &now
	t.UpdatedAt = now
	return nil
}

// Fail implements ports.SyncQueueStore.
func (q *SyncQueue) Fail(ctx context.Context, syncID int64, errMsg string, backoff ports.BackoffFunc, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[syncID]
	if !ok {
		return domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	failLocked(t, errMsg, backoff, now)
	return nil
}

func failLocked(t *domain.SyncTask, errMsg string, backoff ports.BackoffFunc, now time.Time) {
	t.State = domain.SyncStateFailed
	t.ErrorMessage = &errMsg
	t.UpdatedAt = now
	t.NextRetryAt = nil
	if t.Attempts < t.MaxAttempts {
		next := now.Add(backoff(t.Attempts))
		t.NextRetryAt = &next
	}
}

// FailTerminal implements ports.SyncQueueStore.
func (q *SyncQueue) FailTerminal(ctx context.Context, syncID int64, errMsg string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[syncID]
	if !ok {
		return domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	t.State = domain.SyncStateFailed
	t.Attempts = t.MaxAttempts
	t.ErrorMessage = &errMsg
	t.NextRetryAt = nil
	t.UpdatedAt = now
	return nil
}

// ResetForRetry implements ports.SyncQueueStore.
func (q *SyncQueue) ResetForRetry(ctx context.Context, syncID int64, now time.Time) (*domain.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[syncID]
	if !ok {
		return nil, domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	if !t.CanBeReset() {
		return nil, domain.ErrTaskNotRetryable.WithDetail("state", string(t.State))
	}
	if other := q.activeLocked(t.TxnID, t.Kind); other != nil {
		return nil, domain.ErrTaskConflict.WithDetail("sync_id", syncID)
	}

	t.State = domain.SyncStatePending
	t.Attempts = 0
	t.NextRetryAt = nil
	t.ErrorMessage = nil
	t.ProcessedAt = nil
	t.UpdatedAt = now
	return copyTask(t), nil
}

// GetTask implements ports.SyncQueueStore.
func (q *SyncQueue) GetTask(ctx context.Context, syncID int64) (*domain.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[syncID]
	if !ok {
		return nil, domain.ErrTaskNotFound.WithDetail("sync_id", syncID)
	}
	return copyTask(t), nil
}

// ResetDueFailures implements ports.SyncQueueStore.
func (q *SyncQueue) ResetDueFailures(ctx context.Context, now time.Time, limit int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, t := range q.sortedLocked() {
		if n >= limit {
			break
		}
		if !q.retryableLocked(t, now) {
			continue
		}
		t.State = domain.SyncStatePending
		t.NextRetryAt = nil
		t.UpdatedAt = now
		n++
	}
	return n, nil
}

// FailStuck implements ports.SyncQueueStore.
func (q *SyncQueue) FailStuck(ctx context.Context, cutoff time.Time, errMsg string, backoff ports.BackoffFunc, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, t := range q.tasks {
		if t.State == domain.SyncStateProcessing && t.UpdatedAt.Before(cutoff) {
			failLocked(t, errMsg, backoff, now)
			n++
		}
	}
	return n, nil
}

// Put stores a task as-is, assigning an id when SyncID is zero.
func (q *SyncQueue) Put(t *domain.SyncTask) *domain.SyncTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t.SyncID == 0 {
		q.nextID++
		t.SyncID = q.nextID
	} else if t.SyncID > q.nextID {
		q.nextID = t.SyncID
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = domain.DefaultMaxAttempts
	}
	q.tasks[t.SyncID] = copyTask(t)
	return copyTask(t)
}

// All returns every task ordered by sync id.
func (q *SyncQueue) All() []*domain.SyncTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*domain.SyncTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyncID < out[j].SyncID })
	return out
}

// CountByState mirrors the Postgres stats repository.
func (q *SyncQueue) CountByState(ctx context.Context) (map[domain.SyncState]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := map[domain.SyncState]int64{
		domain.SyncStatePending:    0,
		domain.SyncStateProcessing: 0,
		domain.SyncStateCompleted:  0,
		domain.SyncStateFailed:     0,
	}
	for _, t := range q.tasks {
		counts[t.State]++
	}
	return counts, nil
}

// QueueStats implements ports.StatsReader with the queue-derived fields only.
func (q *SyncQueue) QueueStats(ctx context.Context, now time.Time) (*domain.QueueStats, error) {
	counts, _ := q.CountByState(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	stats := &domain.QueueStats{Timestamp: now, SLATarget: "30 seconds"}
	var attempts int64
	for _, t := range q.tasks {
		attempts += int64(t.Attempts)
	}
	stats.Overall = domain.QueueCounts{
		Total:      int64(len(q.tasks)),
		Pending:    counts[domain.SyncStatePending],
		Processing: counts[domain.SyncStateProcessing],
		Completed:  counts[domain.SyncStateCompleted],
		Failed:     counts[domain.SyncStateFailed],
	}
	if len(q.tasks) > 0 {
		stats.Overall.AvgAttempts = float64(attempts) / float64(len(q.tasks))
	}
	return stats, nil
}

// Dashboard implements ports.StatsReader with the queue-derived fields only.
func (q *SyncQueue) Dashboard(ctx context.Context, now time.Time) (*domain.Dashboard, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	d := &domain.Dashboard{Timestamp: now}
	for _, t := range q.tasks {
		switch {
		case t.State == domain.SyncStatePending:
			d.QueueStatus.Pending++
		case t.State == domain.SyncStateProcessing:
			d.QueueStatus.Processing++
		case t.IsDueForRetry(now):
			d.QueueStatus.FailedReadyForRetry++
		}
	}
	d.SystemHealth = domain.HealthFor(d.QueueStatus.Processing)
	return d, nil
}
