package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

// CircuitState represents the current state of a gateway's circuit breaker
type CircuitState int

const (
	// StateClosed - calls flow normally
	StateClosed CircuitState = iota
	// StateOpen - calls fail fast without touching the network
	StateOpen
	// StateHalfOpen - a limited number of probe calls test recovery
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the gateway's circuit is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is spent
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive transport failures before opening
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before half-opening
	OpenTimeout time.Duration
	// MaxRequestsHalfOpen is max concurrent probes allowed in half-open state
	MaxRequestsHalfOpen uint32
}

// DefaultCircuitBreakerConfig returns the defaults used per gateway
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		OpenTimeout:         30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// CircuitBreaker tracks transport health of one gateway. Only transport
// failures and 5xx answers are recorded as failures; 4xx answers prove the
// gateway is reachable.
type CircuitBreaker struct {
	mu               sync.Mutex
	clock            timeutil.Clock
	openedAt         time.Time
	config           CircuitBreakerConfig
	state            CircuitState
	failures         uint32
	requestsHalfOpen uint32
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, clock timeutil.Clock) *CircuitBreaker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CircuitBreaker{
		state:  StateClosed,
		clock:  clock,
		config: config,
	}
}

// Allow reserves a call slot or returns ErrCircuitOpen / ErrTooManyRequests.
// Every successful Allow must be followed by Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.config.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.requestsHalfOpen = 1
		return nil
	case StateHalfOpen:
		if cb.requestsHalfOpen >= cb.config.MaxRequestsHalfOpen {
			return ErrTooManyRequests
		}
		cb.requestsHalfOpen++
		return nil
	}
	return ErrCircuitOpen
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(healthy bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if healthy {
		cb.state = StateClosed
		cb.failures = 0
		cb.requestsHalfOpen = 0
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.clock.Now()
		cb.requestsHalfOpen = 0
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// breakerSet lazily creates one breaker per gateway code.
type breakerSet struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
}

func newBreakerSet(config CircuitBreakerConfig, clock timeutil.Clock) *breakerSet {
	return &breakerSet{
		clock:    clock,
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (s *breakerSet) get(gatewayCode string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[gatewayCode]
	if !ok {
		cb = NewCircuitBreaker(s.config, s.clock)
		s.breakers[gatewayCode] = cb
	}
	return cb
}
