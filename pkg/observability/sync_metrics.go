package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync queue metrics
	syncTasksEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sync_tasks_enqueued_total",
		Help: "Enqueue requests by kind, source and whether a new row was created",
	}, []string{
		"kind",     // STATUS, REFUND, SETTLEMENT
		"source",   // api, webhook, sweeper
		"enqueued", // true, false (deduplicated)
	})

	syncTasksClaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sync_tasks_claimed_total",
		Help: "Tasks moved from PENDING/FAILED to PROCESSING",
	}, []string{"kind"})

	syncTaskOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sync_task_outcomes_total",
		Help: "Handler outcomes",
	}, []string{
		"kind",
		"outcome", // success, retryable, terminal
	})

	syncTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_sync_task_duration_seconds",
		Help:    "End-to-end handler duration per task",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 30},
	}, []string{"kind"})

	syncWorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sync_workers_busy",
		Help: "Dispatcher workers currently running a task",
	})

	// Gateway call metrics
	gatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_calls_total",
		Help: "Outbound gateway HTTP calls",
	}, []string{
		"gateway_code",
		"operation",
		"result", // success, http_error, transient, circuit_open
	})

	gatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Gateway HTTP call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"gateway_code", "operation"})

	// Sweeper metrics
	sweeperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sync_sweeper_runs_total",
		Help: "Sweeper executions",
	}, []string{"sweeper", "status"})

	sweeperAffectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sync_sweeper_affected_total",
		Help: "Rows touched by sweepers",
	}, []string{"sweeper"})

	// Inbound webhook metrics
	inboundWebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhooks_received_total",
		Help: "Inbound gateway webhooks",
	}, []string{
		"gateway_code",
		"webhook_type",
		"status", // HTTP status returned
	})

	// Outbound webhook metrics
	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Total webhook delivery attempts",
	}, []string{
		"event_type",
		"status", // SUCCESS, FAILED, RETRY
	})

	webhookDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Time to deliver webhook",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"event_type"})
)

// RecordEnqueue records an enqueue request
func RecordEnqueue(kind, source string, enqueued bool) {
	label := "false"
	if enqueued {
		label = "true"
	}
	syncTasksEnqueuedTotal.WithLabelValues(kind, source, label).Inc()
}

// RecordClaim records a claimed task
func RecordClaim(kind string) {
	syncTasksClaimedTotal.WithLabelValues(kind).Inc()
}

// RecordTaskOutcome records a handler result and its duration
func RecordTaskOutcome(kind, outcome string, durationSeconds float64) {
	syncTaskOutcomesTotal.WithLabelValues(kind, outcome).Inc()
	syncTaskDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// WorkerStarted and WorkerFinished track busy dispatcher workers
func WorkerStarted()  { syncWorkersBusy.Inc() }
func WorkerFinished() { syncWorkersBusy.Dec() }

// RecordGatewayCall records one outbound gateway call
func RecordGatewayCall(gatewayCode, operation, result string, durationSeconds float64) {
	gatewayCallsTotal.WithLabelValues(gatewayCode, operation, result).Inc()
	gatewayCallDuration.WithLabelValues(gatewayCode, operation).Observe(durationSeconds)
}

// RecordSweep records a sweeper run
func RecordSweep(sweeper string, affected int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	sweeperRunsTotal.WithLabelValues(sweeper, status).Inc()
	if affected > 0 {
		sweeperAffectedTotal.WithLabelValues(sweeper).Add(float64(affected))
	}
}

// RecordInboundWebhook records an inbound gateway webhook
func RecordInboundWebhook(gatewayCode, webhookType string, status int) {
	inboundWebhooksTotal.WithLabelValues(gatewayCode, webhookType, statusLabel(status)).Inc()
}

// RecordWebhookDelivery records webhook delivery
func RecordWebhookDelivery(eventType, status string, duration float64) {
	webhookDeliveriesTotal.WithLabelValues(eventType, status).Inc()
	webhookDeliveryDuration.WithLabelValues(eventType).Observe(duration)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 200 && code < 300:
		return "2xx"
	}
	return "other"
}
