package gatewaysync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kevin07696/gateway-sync/internal/adapters/gateway"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/services/gatewaysync"
	"github.com/kevin07696/gateway-sync/internal/testutil/fixtures"
	"github.com/kevin07696/gateway-sync/internal/testutil/memory"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type cannedResponse struct {
	body   string
	status int
}

// fakeGateway answers with queued responses in order and repeats the last one.
type fakeGateway struct {
	mu        sync.Mutex
	responses []cannedResponse
	requests  []map[string]interface{}
	paths     []string
	srv       *httptest.Server
}

func newFakeGateway(t *testing.T, responses ...cannedResponse) *fakeGateway {
	t.Helper()
	g := &fakeGateway{responses: responses}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		g.mu.Lock()
		g.requests = append(g.requests, body)
		g.paths = append(g.paths, r.URL.Path)
		resp := g.responses[0]
		if len(g.responses) > 1 {
			g.responses = g.responses[1:]
		}
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) Requests() []map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]interface{}(nil), g.requests...)
}

func (g *fakeGateway) Paths() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

type publishedEvent struct {
	data     map[string]interface{}
	clientID string
	event    domain.EventType
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(clientID string, event domain.EventType, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{clientID: clientID, event: event, data: data})
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type harness struct {
	clock      *timeutil.FakeClock
	queue      *memory.SyncQueue
	txns       *memory.Transactions
	gateways   *memory.Gateways
	logs       *memory.SyncLogs
	events     *recordingPublisher
	processor  *gatewaysync.Processor
	dispatcher *gatewaysync.Dispatcher
	service    *gatewaysync.Service
}

// newHarness wires the engine against in-memory stores and, when gw is not
// nil, an active "ACME" gateway served by gw.
func newHarness(t *testing.T, gw *fakeGateway) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := timeutil.NewFakeClock(fixtures.Epoch)

	h := &harness{
		clock:    clock,
		queue:    memory.NewSyncQueue(clock),
		gateways: memory.NewGateways(),
		logs:     memory.NewSyncLogs(clock),
		events:   &recordingPublisher{},
	}
	h.txns = memory.NewTransactions(h.queue)
	if gw != nil {
		h.gateways.Put(fixtures.NewGateway("ACME", gw.srv.URL).Build())
	}

	client := gateway.NewClient(http.DefaultClient, h.logs, gateway.DefaultCircuitBreakerConfig(), clock, logger)
	h.processor = gatewaysync.NewProcessor(h.txns, h.gateways, client, h.logs, h.events, clock, logger)
	h.dispatcher = gatewaysync.NewDispatcher(h.queue, h.processor, gatewaysync.DefaultDispatcherConfig(),
		resilience.TestTimeoutConfig(), clock, logger)
	h.service = gatewaysync.NewService(h.queue, h.queue, h.logs, h.gateways, client, h.dispatcher, clock, 3, logger)
	return h
}

// cycle runs one dispatch pass and waits for every started worker.
func (h *harness) cycle(t *testing.T) int {
	t.Helper()
	n, err := h.dispatcher.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.dispatcher.InFlight() == 0 }, 5*time.Second, 5*time.Millisecond)
	return n
}

func (h *harness) task(t *testing.T, syncID int64) *domain.SyncTask {
	t.Helper()
	task, err := h.queue.GetTask(context.Background(), syncID)
	require.NoError(t, err)
	return task
}

func (h *harness) txn(t *testing.T, txnID string) *domain.Transaction {
	t.Helper()
	txn, err := h.txns.GetTransaction(context.Background(), txnID)
	require.NoError(t, err)
	return txn
}
