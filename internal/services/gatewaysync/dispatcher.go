package gatewaysync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/pkg/observability"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
	"github.com/kevin07696/gateway-sync/pkg/shutdown"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"go.uber.org/zap"
)

// persistTimeout bounds the state write that closes a task run.
const persistTimeout = 5 * time.Second

// TaskProcessor runs one attempt of a claimed task.
type TaskProcessor interface {
	Process(ctx context.Context, task *domain.SyncTask) Result
}

// DispatcherConfig sizes the claim loop.
type DispatcherConfig struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
}

// DefaultDispatcherConfig wakes every 10s and runs up to 10 tasks at once.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Interval:  10 * time.Second,
		BatchSize: 10,
		Workers:   10,
	}
}

// Dispatcher is the only component that moves tasks from PENDING to
// PROCESSING. It claims batches from the queue and runs each task on its own
// tracked goroutine.
type Dispatcher struct {
	queue     ports.SyncQueueStore
	processor TaskProcessor
	backoff   ports.BackoffFunc
	timeouts  *resilience.TimeoutConfig
	clock     timeutil.Clock
	inflight  *shutdown.InFlightTracker
	logger    *zap.Logger
	wake      chan struct{}
	claimMu   sync.Mutex
	cfg       DispatcherConfig
}

// NewDispatcher creates a dispatcher. Zero config fields take their defaults.
func NewDispatcher(
	queue ports.SyncQueueStore,
	processor TaskProcessor,
	cfg DispatcherConfig,
	timeouts *resilience.TimeoutConfig,
	clock timeutil.Clock,
	logger *zap.Logger,
) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Dispatcher{
		queue:     queue,
		processor: processor,
		backoff:   resilience.DefaultSyncBackoff().Func(),
		timeouts:  timeouts,
		clock:     clock,
		inflight:  shutdown.NewInFlightTracker("sync-dispatcher", logger),
		logger:    logger,
		wake:      make(chan struct{}, 1),
		cfg:       cfg,
	}
}

// Notify asks the run loop to claim now instead of waiting for the next tick.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// InFlight returns the number of tasks currently running.
func (d *Dispatcher) InFlight() int64 {
	return d.inflight.Count()
}

// Run claims on every tick or notification until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("Dispatch cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// DispatchOnce claims up to one batch, bounded by free worker slots, and
// starts a worker per task. It returns the number of tasks claimed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	d.claimMu.Lock()
	defer d.claimMu.Unlock()

	if d.inflight.IsShuttingDown() {
		return 0, nil
	}

	limit := d.cfg.Workers - int(d.inflight.Count())
	if limit > d.cfg.BatchSize {
		limit = d.cfg.BatchSize
	}
	if limit <= 0 {
		return 0, nil
	}

	tasks, err := d.queue.ClaimBatch(ctx, d.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	for _, task := range tasks {
		task := task
		observability.RecordClaim(string(task.Kind))
		if !d.inflight.Go(func() { d.execute(task) }) {
			// Claimed while shutting down: hand the attempt back to the
			// retry schedule instead of leaving it PROCESSING.
			d.finish(task, Retryable("worker shutting down"), 0)
		}
	}

	if len(tasks) > 0 {
		d.logger.Debug("Claimed sync tasks", zap.Int("count", len(tasks)))
	}
	return len(tasks), nil
}

func (d *Dispatcher) execute(task *domain.SyncTask) {
	observability.WorkerStarted()
	defer observability.WorkerFinished()

	// Tasks outlive the run loop's context so shutdown can drain them;
	// only the hard deadline cancels a running task.
	ctx, cancel := d.timeouts.TaskContext(context.Background())
	defer cancel()

	start := time.Now()
	result := d.processor.Process(ctx, task)
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && result.Outcome == OutcomeSuccess {
		result = Retryable("task deadline exceeded")
	}
	if d.timeouts.IsSlow(elapsed) {
		d.logger.Warn("Slow sync task",
			zap.Int64("sync_id", task.SyncID),
			zap.String("txn_id", task.TxnID),
			zap.String("kind", string(task.Kind)),
			zap.Duration("elapsed", elapsed),
		)
	}

	d.finish(task, result, elapsed)
}

func (d *Dispatcher) finish(task *domain.SyncTask, result Result, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := d.clock.Now()
	var err error
	switch result.Outcome {
	case OutcomeSuccess:
		err = d.queue.Complete(ctx, task.SyncID, result.Response, now)
	case OutcomeTerminal:
		err = d.queue.FailTerminal(ctx, task.SyncID, result.Error, now)
	default:
		err = d.queue.Fail(ctx, task.SyncID, result.Error, d.backoff, now)
	}
	observability.RecordTaskOutcome(string(task.Kind), result.Outcome.String(), elapsed.Seconds())

	fields := []zap.Field{
		zap.Int64("sync_id", task.SyncID),
		zap.String("txn_id", task.TxnID),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempt", task.Attempts),
		zap.String("outcome", result.Outcome.String()),
	}
	if err != nil {
		d.logger.Error("Failed to record sync task outcome", append(fields, zap.Error(err))...)
		return
	}
	if result.Outcome != OutcomeSuccess {
		d.logger.Warn("Sync task failed", append(fields, zap.String("error", result.Error))...)
	}
}

// Shutdown stops claiming and waits for running tasks until ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return d.inflight.Shutdown(ctx)
}
