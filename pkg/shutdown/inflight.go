package shutdown

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// InFlightTracker tracks in-flight work (sync tasks, webhook deliveries) so
// shutdown can wait for it to finish.
type InFlightTracker struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	closing  bool
	inFlight atomic.Int64
	logger   *zap.Logger
	name     string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{
		logger: logger,
		name:   name,
	}
}

// Add reserves a slot for new work. It returns false once shutdown has begun.
func (ift *InFlightTracker) Add() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()

	if ift.closing {
		return false
	}
	ift.wg.Add(1)
	ift.inFlight.Add(1)
	return true
}

// Done releases a slot taken by Add.
func (ift *InFlightTracker) Done() {
	ift.inFlight.Add(-1)
	ift.wg.Done()
}

// Go runs fn on its own goroutine as tracked work.
func (ift *InFlightTracker) Go(fn func()) bool {
	if !ift.Add() {
		return false
	}
	go func() {
		defer ift.Done()
		fn()
	}()
	return true
}

// Count returns the amount of work currently running.
func (ift *InFlightTracker) Count() int64 {
	return ift.inFlight.Load()
}

// IsShuttingDown returns true if shutdown has been initiated
func (ift *InFlightTracker) IsShuttingDown() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()
	return ift.closing
}

// Shutdown rejects new work and waits for running work or ctx expiry.
func (ift *InFlightTracker) Shutdown(ctx context.Context) error {
	ift.mu.Lock()
	ift.closing = true
	ift.mu.Unlock()

	ift.logger.Info("Waiting for in-flight work to complete",
		zap.String("tracker", ift.name),
		zap.Int64("in_flight", ift.Count()),
	)

	done := make(chan struct{})
	go func() {
		ift.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ift.logger.Info("All in-flight work completed", zap.String("tracker", ift.name))
		return nil
	case <-ctx.Done():
		ift.logger.Warn("Shutdown timeout - some work may be incomplete",
			zap.String("tracker", ift.name),
			zap.Int64("in_flight", ift.Count()),
		)
		return ctx.Err()
	}
}

// BackgroundWorker runs one long-lived loop, such as the dispatcher, until
// Shutdown cancels its context.
type BackgroundWorker struct {
	name   string
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBackgroundWorker creates a new background worker
func NewBackgroundWorker(name string, logger *zap.Logger) *BackgroundWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundWorker{
		name:   name,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs work on a new goroutine. work must return when ctx is done.
func (bw *BackgroundWorker) Start(work func(ctx context.Context)) {
	go func() {
		defer close(bw.done)
		bw.logger.Info("Background worker started", zap.String("worker", bw.name))
		work(bw.ctx)
		bw.logger.Info("Background worker stopped", zap.String("worker", bw.name))
	}()
}

// Shutdown cancels the worker and waits for it to return.
func (bw *BackgroundWorker) Shutdown(ctx context.Context) error {
	bw.cancel()

	select {
	case <-bw.done:
		return nil
	case <-ctx.Done():
		bw.logger.Warn("Background worker shutdown timeout", zap.String("worker", bw.name))
		return ctx.Err()
	}
}
