package gatewaysync_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/services/gatewaysync"
	"github.com/kevin07696/gateway-sync/internal/testutil/fixtures"
	"github.com/kevin07696/gateway-sync/internal/testutil/memory"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestDispatcher_SuccessfulStatusProbe(t *testing.T) {
	gw := newFakeGateway(t, cannedResponse{status: http.StatusOK, body: `{"status":"SUCCESS"}`})
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

	res, err := h.service.EnqueueStatus(context.Background(), "T1", false)
	require.NoError(t, err)
	require.True(t, res.Enqueued)

	assert.Equal(t, 1, h.cycle(t))

	assert.Equal(t, domain.TransactionStatusSuccess, h.txn(t, "T1").Status)

	task := h.task(t, res.SyncID)
	assert.Equal(t, domain.SyncStateCompleted, task.State)
	assert.Equal(t, 1, task.Attempts)
	assert.NotNil(t, task.ProcessedAt)
	assert.JSONEq(t, `{"status":"SUCCESS"}`, string(task.ResponseData))

	logs := h.logs.All()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "STATUS_CHECK", logs[0].Operation)
	assert.Equal(t, res.SyncID, logs[0].SyncID)

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPaymentSuccess, events[0].event)
	assert.Equal(t, "client-1", events[0].clientID)
}

func TestDispatcher_TransientFailureThenSuccess(t *testing.T) {
	gw := newFakeGateway(t,
		cannedResponse{status: http.StatusInternalServerError, body: `{"error":"busy"}`},
		cannedResponse{status: http.StatusOK, body: `{"status":"SUCCESS"}`},
	)
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

	res, err := h.service.EnqueueStatus(context.Background(), "T1", false)
	require.NoError(t, err)

	h.cycle(t)
	task := h.task(t, res.SyncID)
	assert.Equal(t, domain.SyncStateFailed, task.State)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.NextRetryAt)
	assert.Equal(t, fixtures.Epoch.Add(30*time.Second), *task.NextRetryAt)
	require.NotNil(t, task.ErrorMessage)
	assert.Equal(t, `HTTP 500: {"error":"busy"}`, *task.ErrorMessage)
	assert.Equal(t, domain.TransactionStatusPending, h.txn(t, "T1").Status)

	// Not due yet.
	n, err := h.queue.ResetDueFailures(context.Background(), h.clock.Now(), 20)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(30 * time.Second)
	n, err = h.queue.ResetDueFailures(context.Background(), h.clock.Now(), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.cycle(t)
	task = h.task(t, res.SyncID)
	assert.Equal(t, domain.SyncStateCompleted, task.State)
	assert.Equal(t, 2, task.Attempts)

	txn := h.txn(t, "T1")
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	require.NotNil(t, txn.UpdatedDate)
	assert.Equal(t, h.clock.Now(), *txn.UpdatedDate)

	logs := h.logs.All()
	require.Len(t, logs, 2)
	assert.False(t, logs[0].Success)
	assert.True(t, logs[1].Success)
}

func TestDispatcher_AttemptBound(t *testing.T) {
	gw := newFakeGateway(t, cannedResponse{status: http.StatusBadGateway, body: `down`})
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

	res, err := h.service.EnqueueStatus(context.Background(), "T1", true)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		h.cycle(t)
		task := h.task(t, res.SyncID)
		require.LessOrEqual(t, task.Attempts, task.MaxAttempts)
		h.clock.Advance(5 * time.Minute)
	}

	task := h.task(t, res.SyncID)
	assert.Equal(t, domain.SyncStateFailed, task.State)
	assert.Equal(t, 3, task.Attempts)
	assert.Nil(t, task.NextRetryAt)
	assert.True(t, task.IsTerminal())
	assert.Len(t, h.logs.All(), 3)
}

func TestDispatcher_TerminalFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		kind      domain.SyncKind
		wantError string
	}{
		{
			name:      "transaction missing",
			setup:     func(h *harness) {},
			kind:      domain.SyncKindStatus,
			wantError: "Transaction T1 not found",
		},
		{
			name: "gateway inactive",
			setup: func(h *harness) {
				h.gateways.Put(fixtures.NewGateway("ACME", "http://127.0.0.1:1").Inactive().Build())
				h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())
			},
			kind:      domain.SyncKindStatus,
			wantError: "Gateway configuration not found for transaction T1",
		},
		{
			name: "gateway unknown",
			setup: func(h *harness) {
				h.txns.Put(fixtures.NewTransaction("T1").WithGateway("NOPE").Build())
			},
			kind:      domain.SyncKindStatus,
			wantError: "Gateway configuration not found for transaction T1",
		},
		{
			name: "refund endpoint missing",
			setup: func(h *harness) {
				h.gateways.Put(fixtures.NewGateway("ACME", "http://127.0.0.1:1").WithoutRefundEndpoint().Build())
				h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())
			},
			kind:      domain.SyncKindRefund,
			wantError: "ACME: GATEWAY_CONFIG_MISSING_ENDPOINT: gateway endpoint not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.setup(h)

			res, err := h.service.Enqueue(context.Background(), domain.EnqueueParams{
				TxnID:    "T1",
				Kind:     tt.kind,
				Priority: domain.PriorityMedium,
			}, gatewaysync.SourceAPI)
			require.NoError(t, err)

			h.cycle(t)

			task := h.task(t, res.SyncID)
			assert.Equal(t, domain.SyncStateFailed, task.State)
			assert.Equal(t, task.MaxAttempts, task.Attempts)
			assert.Nil(t, task.NextRetryAt)
			require.NotNil(t, task.ErrorMessage)
			assert.Equal(t, tt.wantError, *task.ErrorMessage)

			// The attempt never reached a gateway but still leaves one row.
			logs := h.logs.All()
			require.Len(t, logs, 1)
			assert.Equal(t, res.SyncID, logs[0].SyncID)
			assert.Equal(t, tt.kind.Operation(), logs[0].Operation)
			assert.False(t, logs[0].Success)
			assert.Nil(t, logs[0].ResponseStatus)
			require.NotNil(t, logs[0].ErrorMessage)
			assert.Equal(t, tt.wantError, *logs[0].ErrorMessage)
		})
	}
}

func TestDispatcher_ClaimsByPriorityWithinWorkerBound(t *testing.T) {
	clock := timeutil.NewFakeClock(fixtures.Epoch)
	queue := memory.NewSyncQueue(clock)

	for i, p := range []domain.Priority{domain.PriorityLow, domain.PriorityHigh, domain.PriorityMedium} {
		queue.Put(&domain.SyncTask{
			TxnID:     string(rune('A' + i)),
			Kind:      domain.SyncKindStatus,
			Priority:  p,
			State:     domain.SyncStatePending,
			CreatedAt: fixtures.Epoch,
		})
	}

	release := make(chan struct{})
	proc := &blockingProcessor{release: release}
	d := gatewaysync.NewDispatcher(queue, proc, gatewaysync.DispatcherConfig{BatchSize: 10, Workers: 2},
		resilience.TestTimeoutConfig(), clock, zaptest.NewLogger(t))

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Both workers busy: nothing more is claimed.
	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(release)
	require.Eventually(t, func() bool { return d.InFlight() == 0 }, 5*time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t, []string{"B", "C"}, proc.Seen())

	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool { return d.InFlight() == 0 }, 5*time.Second, 5*time.Millisecond)

	for _, task := range queue.All() {
		assert.Equal(t, domain.SyncStateCompleted, task.State)
	}
}

func TestDispatcher_ShutdownStopsClaiming(t *testing.T) {
	clock := timeutil.NewFakeClock(fixtures.Epoch)
	queue := memory.NewSyncQueue(clock)
	queue.Put(&domain.SyncTask{TxnID: "T1", Kind: domain.SyncKindStatus, Priority: 1, State: domain.SyncStatePending})

	d := gatewaysync.NewDispatcher(queue, &blockingProcessor{release: closedChan()}, gatewaysync.DefaultDispatcherConfig(),
		resilience.TestTimeoutConfig(), clock, zaptest.NewLogger(t))

	require.NoError(t, d.Shutdown(context.Background()))

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, domain.SyncStatePending, queue.All()[0].State)
}

func TestDispatcher_RunWakesOnNotify(t *testing.T) {
	clock := timeutil.NewFakeClock(fixtures.Epoch)
	queue := memory.NewSyncQueue(clock)
	proc := &blockingProcessor{release: closedChan()}
	d := gatewaysync.NewDispatcher(queue, proc, gatewaysync.DispatcherConfig{Interval: time.Hour},
		resilience.TestTimeoutConfig(), clock, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	queue.Put(&domain.SyncTask{TxnID: "T1", Kind: domain.SyncKindStatus, Priority: 1, State: domain.SyncStatePending})
	d.Notify()

	require.Eventually(t, func() bool {
		return queue.All()[0].State == domain.SyncStateCompleted
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestDispatcher_PanicBecomesRetryable(t *testing.T) {
	h := newHarness(t, nil)
	h.gateways.Put(fixtures.NewGateway("ACME", "http://127.0.0.1:1").Build())
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

	d := gatewaysync.NewDispatcher(h.queue, panickingProcessor{}, gatewaysync.DefaultDispatcherConfig(),
		resilience.TestTimeoutConfig(), h.clock, zaptest.NewLogger(t))

	res, err := h.service.EnqueueStatus(context.Background(), "T1", false)
	require.NoError(t, err)

	_, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return d.InFlight() == 0 }, 5*time.Second, 5*time.Millisecond)

	task := h.task(t, res.SyncID)
	assert.Equal(t, domain.SyncStateFailed, task.State)
	require.NotNil(t, task.ErrorMessage)
	assert.Equal(t, "Internal error: boom", *task.ErrorMessage)
	assert.NotNil(t, task.NextRetryAt)
}

type blockingProcessor struct {
	release <-chan struct{}
	mu      sync.Mutex
	seen    []string
}

func (p *blockingProcessor) Process(ctx context.Context, task *domain.SyncTask) gatewaysync.Result {
	p.mu.Lock()
	p.seen = append(p.seen, task.TxnID)
	p.mu.Unlock()
	<-p.release
	return gatewaysync.Success(nil)
}

func (p *blockingProcessor) Seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

// panickingProcessor delegates to a real Processor whose transaction store
// panics, so the recovery path is exercised.
type panickingProcessor struct{}

func (panickingProcessor) Process(ctx context.Context, task *domain.SyncTask) gatewaysync.Result {
	p := gatewaysync.NewProcessor(panickingTransactions{}, nil, nil, nil, nil, nil, zap.NewNop())
	return p.Process(ctx, task)
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
