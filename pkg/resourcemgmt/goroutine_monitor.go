// Package resourcemgmt watches process level resources for leaks.
package resourcemgmt

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	goroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sync_goroutines",
		Help: "Current number of goroutines in the process",
	})

	goroutineLeakDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sync_goroutine_leaks_detected_total",
		Help: "Total number of potential goroutine leak detections",
	})
)

// Config holds configuration for the goroutine monitor
type Config struct {
	CheckInterval time.Duration // How often to sample
	LeakThreshold int           // Goroutines above baseline to alert
}

// DefaultConfig returns default configuration. The threshold sits well above
// the dispatcher workers plus in-flight webhook deliveries of a busy node.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 30 * time.Second,
		LeakThreshold: 100,
	}
}

// Stats is one goroutine sample
type Stats struct {
	TotalGoroutines    int
	BaselineGoroutines int
	Increase           int
	LeakSuspected      bool
}

// GoroutineMonitor samples the goroutine count against the count taken once
// the engine finished starting, and warns when it keeps growing.
type GoroutineMonitor struct {
	logger        *zap.Logger
	count         func() int
	checkInterval time.Duration
	baseline      int
	leakThreshold int
}

// NewGoroutineMonitor creates a new goroutine monitor. Call it after the
// long-lived workers are running so they are part of the baseline.
func NewGoroutineMonitor(logger *zap.Logger, cfg *Config) *GoroutineMonitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return newMonitor(logger, cfg, runtime.NumGoroutine)
}

func newMonitor(logger *zap.Logger, cfg *Config, count func() int) *GoroutineMonitor {
	m := &GoroutineMonitor{
		logger:        logger,
		count:         count,
		checkInterval: cfg.CheckInterval,
		baseline:      count(),
		leakThreshold: cfg.LeakThreshold,
	}

	logger.Info("Goroutine monitor initialized",
		zap.Int("baseline_goroutines", m.baseline),
		zap.Duration("check_interval", m.checkInterval),
		zap.Int("leak_threshold", m.leakThreshold),
	)
	return m
}

// StartMonitoring samples until ctx is cancelled
func (m *GoroutineMonitor) StartMonitoring(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check takes one sample, updates the gauge and reports it
func (m *GoroutineMonitor) Check() Stats {
	current := m.count()
	goroutineCount.Set(float64(current))

	stats := Stats{
		TotalGoroutines:    current,
		BaselineGoroutines: m.baseline,
		Increase:           current - m.baseline,
	}

	if stats.Increase > m.leakThreshold {
		stats.LeakSuspected = true
		goroutineLeakDetected.Inc()
		m.logger.Warn("Potential goroutine leak detected",
			zap.Int("current_count", current),
			zap.Int("baseline_count", m.baseline),
			zap.Int("increase", stats.Increase),
			zap.Int("threshold", m.leakThreshold),
		)
		return stats
	}

	m.logger.Debug("Goroutine status",
		zap.Int("total_goroutines", current),
		zap.Int("increase", stats.Increase),
	)
	return stats
}
