package domain

import "time"

// QueueCounts is the per-state breakdown of gateway_sync_queue.
type QueueCounts struct {
	Total       int64   `json:"total_items"`
	Pending     int64   `json:"pending_items"`
	Processing  int64   `json:"processing_items"`
	Completed   int64   `json:"completed_items"`
	Failed      int64   `json:"failed_items"`
	AvgAttempts float64 `json:"avg_attempts"`
}

// RecentCounts covers tasks created in the last hour.
type RecentCounts struct {
	Total     int64 `json:"recent_total"`
	Completed int64 `json:"recent_completed"`
	Failed    int64 `json:"recent_failed"`
}

// SyncPerformance aggregates gateway_sync_logs over a window.
type SyncPerformance struct {
	TotalOperations      int64   `json:"total_operations"`
	SuccessfulOperations int64   `json:"successful_operations"`
	UnderSLA             int64   `json:"under_sla"`
	SuccessRatePercent   float64 `json:"success_rate_percent"`
	SLACompliancePercent float64 `json:"sla_compliance_percent"`
	AvgResponseTimeMS    float64 `json:"avg_response_time"`
	MaxResponseTimeMS    int64   `json:"max_response_time"`
}

// Finalize derives the percentage fields from the raw counters.
func (p *SyncPerformance) Finalize() {
	if p.TotalOperations == 0 {
		return
	}
	p.SuccessRatePercent = roundPercent(p.SuccessfulOperations, p.TotalOperations)
	p.SLACompliancePercent = roundPercent(p.UnderSLA, p.TotalOperations)
}

// PriorityBreakdown is one row of the per-priority summary.
type PriorityBreakdown struct {
	Priority Priority `json:"priority"`
	Count    int64    `json:"count"`
	Pending  int64    `json:"pending"`
	Failed   int64    `json:"failed"`
}

// KindBreakdown is one row of the per-kind summary.
type KindBreakdown struct {
	Kind      SyncKind `json:"sync_type"`
	Count     int64    `json:"count"`
	Pending   int64    `json:"pending"`
	Completed int64    `json:"completed"`
	Failed    int64    `json:"failed"`
}

// QueueStats backs GET /queue/stats.
type QueueStats struct {
	Timestamp         time.Time           `json:"timestamp"`
	SLATarget         string              `json:"sla_target"`
	PriorityBreakdown []PriorityBreakdown `json:"priority_breakdown"`
	KindBreakdown     []KindBreakdown     `json:"type_breakdown"`
	Overall           QueueCounts         `json:"overall_stats"`
	Recent            RecentCounts        `json:"recent_stats"`
	Performance       SyncPerformance     `json:"performance_stats"`
}

// RecentError groups failures by message for the dashboard.
type RecentError struct {
	ErrorMessage string   `json:"error_message"`
	Kind         SyncKind `json:"sync_type"`
	Count        int64    `json:"count"`
}

// WebhookActivity summarizes inbound callbacks over the last 24 hours.
type WebhookActivity struct {
	Total           int64 `json:"total_webhooks"`
	ValidSignatures int64 `json:"valid_signatures"`
	Processed       int64 `json:"processed_webhooks"`
}

// Dashboard backs GET /dashboard.
type Dashboard struct {
	Timestamp      time.Time `json:"timestamp"`
	RecentActivity struct {
		LastHour    int64 `json:"last_hour"`
		Last24Hours int64 `json:"last_24_hours"`
		Last7Days   int64 `json:"last_7_days"`
	} `json:"recent_activity"`
	QueueStatus struct {
		Pending             int64 `json:"pending"`
		Processing          int64 `json:"processing"`
		FailedReadyForRetry int64 `json:"failed_ready_for_retry"`
	} `json:"queue_status"`
	SystemHealth string          `json:"system_health"`
	KindStats    []KindBreakdown `json:"gateway_stats"`
	RecentErrors []RecentError   `json:"recent_errors"`
	Performance  SyncPerformance `json:"performance"`
	Webhooks     WebhookActivity `json:"webhook_stats"`
}

// DegradedProcessingThreshold marks the system degraded when this many
// tasks are PROCESSING at once.
const DegradedProcessingThreshold = 100

// SLAResponseTimeMS is the response-time bound used for SLA compliance.
const SLAResponseTimeMS = 30000

// HealthFor reports the dashboard health label for a processing count.
func HealthFor(processing int64) string {
	if processing >= DegradedProcessingThreshold {
		return "degraded"
	}
	return "healthy"
}

// DeliveryStats summarizes outbound client deliveries.
type DeliveryStats struct {
	Total              int64   `json:"total_deliveries"`
	Successful         int64   `json:"successful_deliveries"`
	Failed             int64   `json:"failed_deliveries"`
	PendingRetry       int64   `json:"pending_retries"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

// Finalize derives SuccessRatePercent.
func (d *DeliveryStats) Finalize() {
	if d.Total > 0 {
		d.SuccessRatePercent = roundPercent(d.Successful, d.Total)
	}
}

func roundPercent(part, total int64) float64 {
	v := float64(part) / float64(total) * 10000
	return float64(int64(v+0.5)) / 100
}
