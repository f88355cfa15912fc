package resilience

import (
	"time"
)

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// LinearBackoff grows the delay by Step for every attempt already made.
//
// Sync task sequence with the default 30s step:
//   - After attempt 1: 30s
//   - After attempt 2: 60s
//   - After attempt 3: 90s
type LinearBackoff struct {
	Step time.Duration
	Max  time.Duration // 0 disables the cap
}

// DefaultSyncBackoff returns the backoff used for failed gateway probes.
func DefaultSyncBackoff() *LinearBackoff {
	return &LinearBackoff{Step: 30 * time.Second}
}

// NextDelay returns attempt * Step (attempt is 1-indexed: the number of
// attempts already made).
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(attempt) * lb.Step
	if lb.Max > 0 && delay > lb.Max {
		return lb.Max
	}
	return delay
}

// Func adapts the strategy to a plain function value.
func (lb *LinearBackoff) Func() func(int) time.Duration {
	return lb.NextDelay
}

// ScheduleBackoff walks a fixed list of delays and stays on the last one.
type ScheduleBackoff struct {
	Delays []time.Duration
}

// WebhookBackoff returns the schedule used for merchant webhook retries.
//
// Retry sequence:
//   - After attempt 1: 5m
//   - After attempt 2: 15m
//   - After attempt 3+: 60m
func WebhookBackoff() *ScheduleBackoff {
	return &ScheduleBackoff{
		Delays: []time.Duration{5 * time.Minute, 15 * time.Minute, 60 * time.Minute},
	}
}

// NextDelay returns Delays[min(attempt-1, len-1)].
func (sb *ScheduleBackoff) NextDelay(attempt int) time.Duration {
	if len(sb.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(sb.Delays)-1 {
		idx = len(sb.Delays) - 1
	}
	return sb.Delays[idx]
}
