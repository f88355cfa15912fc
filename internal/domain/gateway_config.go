package domain

import (
	"time"
)

// Default gateway timeouts and bounds.
const (
	DefaultGatewayTimeoutSeconds = 30
	MinGatewayTimeoutSeconds     = 5
	MaxGatewayTimeoutSeconds     = 120
	MaxGatewayRetryAttempts      = 10
)

// GatewayConfig is a row of gateway_configurations. A config is read once per
// task and never mutated while the task runs.
type GatewayConfig struct {
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	RefundEndpoint      *string   `json:"refund_endpoint,omitempty" validate:"omitempty,url"`
	WebhookSecret       *string   `json:"-"`
	WebhookURL          *string   `json:"webhook_url,omitempty" validate:"omitempty,url"`
	GatewayCode         string    `json:"gateway_code" validate:"required,max=50"`
	GatewayName         string    `json:"gateway_name" validate:"required,max=100"`
	APIEndpoint         string    `json:"api_endpoint" validate:"required,url"`
	StatusCheckEndpoint string    `json:"status_check_endpoint" validate:"required,url"`
	APIKey              string    `json:"-" validate:"required"`
	APISecret           string    `json:"-"`
	GatewayID           int64     `json:"gateway_id"`
	TimeoutSeconds      int       `json:"timeout_seconds" validate:"min=5,max=120"`
	MaxRetryAttempts    int       `json:"max_retry_attempts" validate:"min=0,max=10"`
	RetryDelaySeconds   int       `json:"retry_delay_seconds" validate:"min=0"`
	IsActive            bool      `json:"is_active"`
	SupportsWebhook     bool      `json:"supports_webhook"`
}

// Timeout returns the per-call deadline, falling back to the default when the
// stored value is outside the allowed range.
func (g *GatewayConfig) Timeout() time.Duration {
	secs := g.TimeoutSeconds
	if secs < MinGatewayTimeoutSeconds || secs > MaxGatewayTimeoutSeconds {
		secs = DefaultGatewayTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// HasWebhookSecret reports whether inbound callbacks must be signed.
func (g *GatewayConfig) HasWebhookSecret() bool {
	return g.WebhookSecret != nil && *g.WebhookSecret != ""
}

// EndpointFor returns the URL probed for the given kind. Settlement has no
// dedicated endpoint and goes to the generic API endpoint.
func (g *GatewayConfig) EndpointFor(kind SyncKind) (string, error) {
	switch kind {
	case SyncKindStatus:
		return g.StatusCheckEndpoint, nil
	case SyncKindRefund:
		if g.RefundEndpoint == nil || *g.RefundEndpoint == "" {
			return "", ErrGatewayMissingEndpoint.WithDetail("endpoint", "refund_endpoint")
		}
		return *g.RefundEndpoint, nil
	case SyncKindSettlement:
		return g.APIEndpoint, nil
	}
	return "", ErrInvalidKind.WithDetail("kind", string(kind))
}
