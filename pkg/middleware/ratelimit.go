package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter tracks a rate limiter and its last access time
type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter limits requests per client IP. Entries idle for longer than the
// cleanup interval are dropped, and the cache is capped at maxSize entries.
type RateLimiter struct {
	limiters        map[string]*ipLimiter
	mu              sync.Mutex
	rate            rate.Limit
	burst           int
	maxSize         int
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given
// burst for each client IP.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters:        make(map[string]*ipLimiter),
		rate:            rate.Limit(requestsPerSecond),
		burst:           burst,
		maxSize:         10000,
		cleanupInterval: 5 * time.Minute,
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes entries that haven't been accessed in the last cleanup interval
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.cleanupInterval)
	removed := 0
	for ip, limiter := range rl.limiters {
		if limiter.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// Shutdown stops the cleanup goroutine
func (rl *RateLimiter) Shutdown() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if limiter, ok := rl.limiters[ip]; ok {
		limiter.lastAccess = now
		return limiter.limiter
	}

	if len(rl.limiters) >= rl.maxSize {
		rl.evictOldest()
	}

	entry := &ipLimiter{
		limiter:    rate.NewLimiter(rl.rate, rl.burst),
		lastAccess: now,
	}
	rl.limiters[ip] = entry

	return entry.limiter
}

// evictOldest must be called with mu held.
func (rl *RateLimiter) evictOldest() {
	var oldestIP string
	var oldestTime time.Time
	for ip, lim := range rl.limiters {
		if oldestIP == "" || lim.lastAccess.Before(oldestTime) {
			oldestIP = ip
			oldestTime = lim.lastAccess
		}
	}
	if oldestIP != "" {
		delete(rl.limiters, oldestIP)
	}
}

// Middleware rejects requests over the per-IP budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(ClientIP(r)).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the request's remote host without the port. Behind a proxy
// it relies on chi's RealIP middleware having rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
