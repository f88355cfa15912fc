// Package sweeper runs the periodic maintenance jobs of the sync engine:
// probing stale PENDING transactions, re-arming failed tasks, reclaiming
// tasks whose worker died and re-sending due merchant webhooks.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/internal/services/gatewaysync"
	"github.com/kevin07696/gateway-sync/pkg/observability"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

// Sweeper names, also used as the {sweeper} segment of the cron routes.
const (
	PendingProbe = "pending-probe"
	RetryReset   = "retry-reset"
	StuckTasks   = "stuck-tasks"
	WebhookRetry = "webhook-retry"
	Dispatch     = "dispatch"
)

// WorkerLostMessage is recorded on PROCESSING tasks reclaimed by StuckTasks.
const WorkerLostMessage = "worker lost"

// ErrUnknownSweeper is returned by RunByName for names it does not know.
var ErrUnknownSweeper = domain.NewDomainError(domain.ErrorCodeValidationFailed, "unknown sweeper")

// Config holds the sweeper periods and per-run limits.
type Config struct {
	PendingProbeInterval time.Duration
	PendingProbeAge      time.Duration
	RetryResetInterval   time.Duration
	StuckInterval        time.Duration
	WebhookRetryInterval time.Duration
	PendingProbeLimit    int
	RetryResetLimit      int
	WebhookRetryLimit    int
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		PendingProbeInterval: 30 * time.Second,
		PendingProbeAge:      5 * time.Minute,
		RetryResetInterval:   60 * time.Second,
		StuckInterval:        60 * time.Second,
		WebhookRetryInterval: 60 * time.Second,
		PendingProbeLimit:    50,
		RetryResetLimit:      20,
		WebhookRetryLimit:    50,
	}
}

// Enqueuer queues sync tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, params domain.EnqueueParams, source string) (*gatewaysync.EnqueueResult, error)
}

// WebhookRetrier re-sends merchant webhooks whose retry time has come.
type WebhookRetrier interface {
	RetryDue(ctx context.Context, limit int) (int, error)
}

// DepthReader reports queue sizes per state for the depth gauge.
type DepthReader interface {
	CountByState(ctx context.Context) (map[domain.SyncState]int64, error)
}

type job struct {
	run      func(ctx context.Context) (int, error)
	interval time.Duration
}

// Sweepers owns the cron scheduler and the jobs it runs.
type Sweepers struct {
	queue    ports.SyncQueueStore
	txns     ports.TransactionStore
	gateways ports.GatewayRegistry
	enqueuer Enqueuer
	webhooks WebhookRetrier
	waker    gatewaysync.Notifier
	depth    DepthReader
	cfg      Config
	timeouts *resilience.TimeoutConfig
	backoff  ports.BackoffFunc
	clock    timeutil.Clock
	logger   *zap.Logger

	jobs map[string]job
	cron *cron.Cron
}

// New creates the sweepers. webhooks, waker and depth may be nil.
func New(
	queue ports.SyncQueueStore,
	txns ports.TransactionStore,
	gateways ports.GatewayRegistry,
	enqueuer Enqueuer,
	webhooks WebhookRetrier,
	waker gatewaysync.Notifier,
	depth DepthReader,
	cfg Config,
	timeouts *resilience.TimeoutConfig,
	clock timeutil.Clock,
	logger *zap.Logger,
) *Sweepers {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Sweepers{
		queue:    queue,
		txns:     txns,
		gateways: gateways,
		enqueuer: enqueuer,
		webhooks: webhooks,
		waker:    waker,
		depth:    depth,
		cfg:      cfg,
		timeouts: timeouts,
		backoff:  resilience.DefaultSyncBackoff().Func(),
		clock:    clock,
		logger:   logger,
	}
	s.jobs = map[string]job{
		PendingProbe: {s.probePending, cfg.PendingProbeInterval},
		RetryReset:   {s.resetFailures, cfg.RetryResetInterval},
		StuckTasks:   {s.reclaimStuck, cfg.StuckInterval},
		WebhookRetry: {s.retryWebhooks, cfg.WebhookRetryInterval},
		// The dispatcher keeps its own ticker; this entry only exists for
		// external schedulers.
		Dispatch: {s.wakeDispatcher, 0},
	}
	return s
}

// Names lists the sweepers RunByName accepts.
func (s *Sweepers) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start schedules every sweeper with a positive interval. A run still in
// progress when its next tick fires is skipped.
func (s *Sweepers) Start() error {
	logger := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, name := range s.Names() {
		j := s.jobs[name]
		if j.interval <= 0 {
			continue
		}
		name := name
		if _, err := c.AddFunc("@every "+j.interval.String(), func() {
			_, _ = s.RunByName(context.Background(), name)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		s.logger.Info("Sweeper scheduled",
			zap.String("sweeper", name),
			zap.Duration("interval", j.interval),
		)
	}

	s.cron = c
	c.Start()
	return nil
}

// Stop stops scheduling and waits for running jobs or ctx expiry.
func (s *Sweepers) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunByName runs one sweeper immediately and returns how many rows it
// affected.
func (s *Sweepers) RunByName(ctx context.Context, name string) (int, error) {
	j, ok := s.jobs[name]
	if !ok {
		return 0, ErrUnknownSweeper.WithDetail("sweeper", name)
	}

	ctx, cancel := s.timeouts.SweepContext(ctx)
	defer cancel()

	start := time.Now()
	n, err := j.run(ctx)
	observability.RecordSweep(name, n, err)
	s.refreshDepth(ctx)

	if err != nil {
		s.logger.Error("Sweeper failed",
			zap.String("sweeper", name),
			zap.Int("affected", n),
			zap.Error(err),
		)
		return n, err
	}
	if n > 0 {
		s.logger.Info("Sweeper run completed",
			zap.String("sweeper", name),
			zap.Int("affected", n),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return n, nil
}

// probePending queues a high-priority STATUS probe for transactions that have
// been PENDING longer than PendingProbeAge.
func (s *Sweepers) probePending(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.PendingProbeAge)
	txns, err := s.txns.ListStalePending(ctx, cutoff, s.cfg.PendingProbeLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale pending: %w", err)
	}

	data, _ := json.Marshal(map[string]interface{}{"queued_by": gatewaysync.SourcePendingProbe})
	queued := 0
	for _, txn := range txns {
		res, err := s.enqueuer.Enqueue(ctx, domain.EnqueueParams{
			TxnID:       txn.TxnID,
			PgTxnID:     txn.PgTxnID,
			Kind:        domain.SyncKindStatus,
			Priority:    domain.PriorityHigh,
			RequestData: data,
		}, gatewaysync.SourcePendingProbe)
		if err != nil {
			return queued, fmt.Errorf("enqueue %s: %w", txn.TxnID, err)
		}
		if res.Enqueued {
			queued++
		}
	}
	return queued, nil
}

func (s *Sweepers) resetFailures(ctx context.Context) (int, error) {
	n, err := s.queue.ResetDueFailures(ctx, s.clock.Now(), s.cfg.RetryResetLimit)
	if err != nil {
		return 0, fmt.Errorf("reset due failures: %w", err)
	}
	if n > 0 {
		s.wake()
	}
	return n, nil
}

// reclaimStuck fails PROCESSING tasks untouched for twice the slowest gateway
// timeout so they re-enter the normal retry path.
func (s *Sweepers) reclaimStuck(ctx context.Context) (int, error) {
	maxTimeout, err := s.gateways.MaxTimeout(ctx)
	if err != nil {
		return 0, fmt.Errorf("max gateway timeout: %w", err)
	}
	now := s.clock.Now()
	n, err := s.queue.FailStuck(ctx, now.Add(-2*maxTimeout), WorkerLostMessage, s.backoff, now)
	if err != nil {
		return 0, fmt.Errorf("fail stuck tasks: %w", err)
	}
	if n > 0 {
		s.logger.Warn("Reclaimed stuck sync tasks", zap.Int("count", n), zap.Duration("max_timeout", maxTimeout))
	}
	return n, nil
}

func (s *Sweepers) retryWebhooks(ctx context.Context) (int, error) {
	if s.webhooks == nil {
		return 0, nil
	}
	return s.webhooks.RetryDue(ctx, s.cfg.WebhookRetryLimit)
}

func (s *Sweepers) wakeDispatcher(ctx context.Context) (int, error) {
	s.wake()
	return 0, nil
}

func (s *Sweepers) wake() {
	if s.waker != nil {
		s.waker.Notify()
	}
}

func (s *Sweepers) refreshDepth(ctx context.Context) {
	if s.depth == nil {
		return
	}
	counts, err := s.depth.CountByState(ctx)
	if err != nil {
		s.logger.Warn("Failed to read queue depth", zap.Error(err))
		return
	}
	for _, state := range []domain.SyncState{
		domain.SyncStatePending,
		domain.SyncStateProcessing,
		domain.SyncStateCompleted,
		domain.SyncStateFailed,
	} {
		observability.SetQueueDepth(string(state), counts[state])
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
