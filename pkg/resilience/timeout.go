package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the engine's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//   Sweeper run (50s)
//     ↓
//   Sync task hard deadline (30s), soft deadline (25s)
//     ↓
//   Gateway call (per gateway, default 30s, capped by the task deadline)
//     ↓
//   Database Query (2s/5s/30s - based on complexity)
//
// A task that passes its soft deadline is reported as slow; the hard deadline
// cancels the task context.
type TimeoutConfig struct {
	// Handler layer timeouts
	HTTPHandler time.Duration // Control API request timeout (default: 15s)
	Sweep       time.Duration // One sweeper run (default: 50s)

	// Task timeouts
	TaskSoft time.Duration // Slow-task warning threshold (default: 25s)
	TaskHard time.Duration // Task context deadline (default: 30s)

	// External call timeouts
	Gateway         time.Duration // Gateway call when the config has none (default: 30s)
	WebhookDelivery time.Duration // Client webhook POST when the config has none (default: 30s)

	// Shutdown bounds how long in-flight tasks may run after a stop signal
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:     15 * time.Second,
		Sweep:           50 * time.Second,
		TaskSoft:        25 * time.Second,
		TaskHard:        30 * time.Second,
		Gateway:         30 * time.Second,
		WebhookDelivery: 30 * time.Second,
		Shutdown:        30 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:     2 * time.Second,
		Sweep:           5 * time.Second,
		TaskSoft:        1 * time.Second,
		TaskHard:        2 * time.Second,
		Gateway:         1 * time.Second,
		WebhookDelivery: 1 * time.Second,
		Shutdown:        2 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// SweepContext creates a context with timeout for one sweeper run
func (tc *TimeoutConfig) SweepContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Sweep)
}

// TaskContext creates a context bounded by the hard task deadline
func (tc *TimeoutConfig) TaskContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.TaskHard)
}

// WebhookContext creates a context for one client webhook delivery
func (tc *TimeoutConfig) WebhookContext(parent context.Context, configured time.Duration) (context.Context, context.CancelFunc) {
	if configured <= 0 {
		configured = tc.WebhookDelivery
	}
	return context.WithTimeout(parent, configured)
}

// IsSlow reports whether a task that ran for elapsed crossed the soft deadline
func (tc *TimeoutConfig) IsSlow(elapsed time.Duration) bool {
	return elapsed >= tc.TaskSoft
}
