package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// HTTPClientConfig holds HTTP client configuration
// Tuned separately for gateway probes and merchant webhook delivery
type HTTPClientConfig struct {
	// Connection pooling
	MaxIdleConns        int           // Total idle connections across all hosts
	MaxIdleConnsPerHost int           // Idle connections per host
	MaxConnsPerHost     int           // Maximum connections per host (including active)
	IdleConnTimeout     time.Duration // How long idle connections stay alive

	// Timeouts
	DialTimeout           time.Duration // TCP connection timeout
	TLSHandshakeTimeout   time.Duration // TLS handshake timeout
	ResponseHeaderTimeout time.Duration // Waiting for response headers
	ExpectContinueTimeout time.Duration // 100-continue timeout

	// Keep-alive
	DisableKeepAlives bool
	KeepAlive         time.Duration

	// Compression
	DisableCompression bool

	// TLS
	InsecureSkipVerify bool
	MinTLSVersion      uint16
}

// GatewayClientConfig returns the config used for gateway status probes.
// A handful of gateway hosts receive most traffic; per-call deadlines come
// from the gateway configuration through the request context.
func GatewayClientConfig() *HTTPClientConfig {
	return &HTTPClientConfig{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20, // matches the dispatcher's worker pool ceiling
		IdleConnTimeout:     90 * time.Second,

		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second, // upper bound of timeout_seconds
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives: false,
		KeepAlive:         60 * time.Second,

		DisableCompression: false,

		InsecureSkipVerify: false,
		MinTLSVersion:      tls.VersionTLS12,
	}
}

// WebhookClientConfig returns optimized config for webhook delivery
// Webhooks go to many different hosts - tune for broad distribution
func WebhookClientConfig() *HTTPClientConfig {
	return &HTTPClientConfig{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 2, // don't overwhelm merchant endpoints
		MaxConnsPerHost:     5,
		IdleConnTimeout:     30 * time.Second,

		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives: false,
		KeepAlive:         30 * time.Second,

		DisableCompression: false,

		InsecureSkipVerify: false,
		MinTLSVersion:      tls.VersionTLS12,
	}
}

// NewHTTPClient creates an HTTP client with the given configuration.
// timeout is a backstop; callers bound each request with a context deadline.
func NewHTTPClient(cfg *HTTPClientConfig, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,

		DisableKeepAlives:  cfg.DisableKeepAlives,
		DisableCompression: cfg.DisableCompression,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         cfg.MinTLSVersion,
		},

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		// Gateways and merchants must answer at the configured URL.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
