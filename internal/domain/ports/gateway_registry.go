package ports

import (
	"context"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
)

// GatewayRegistry resolves gateway configurations.
type GatewayRegistry interface {
	// GetActive returns ErrGatewayNotFound or ErrGatewayInactive when the code
	// cannot be used.
	GetActive(ctx context.Context, gatewayCode string) (*domain.GatewayConfig, error)
	GetByID(ctx context.Context, gatewayID int64) (*domain.GatewayConfig, error)

	// MaxTimeout is the largest configured gateway timeout.
	MaxTimeout(ctx context.Context) (time.Duration, error)
}

// GatewayRequest is one outbound gateway call made on behalf of a sync task.
// Body is JSON-encoded; Method defaults to POST.
type GatewayRequest struct {
	Body      interface{}
	Operation string
	Endpoint  string
	Method    string
	SyncID    int64
}

// GatewayResponse is a gateway answer. JSON is nil when the body is not a
// JSON object.
type GatewayResponse struct {
	Headers   map[string]string
	JSON      map[string]interface{}
	Body      []byte
	Status    int
	ElapsedMS int64
}

// ConnectionResult is the outcome of a gateway connectivity check.
type ConnectionResult struct {
	Error     string `json:"error,omitempty"`
	Status    int    `json:"status"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Success   bool   `json:"success"`
}

// GatewayCaller performs authenticated calls against payment gateways and
// records one sync log row per Call.
type GatewayCaller interface {
	Call(ctx context.Context, cfg *domain.GatewayConfig, req GatewayRequest) (*GatewayResponse, error)
	TestConnection(ctx context.Context, cfg *domain.GatewayConfig) *ConnectionResult
}
