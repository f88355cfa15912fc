package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

// Gateways implements ports.GatewayRegistry.
type Gateways struct {
	mu      sync.Mutex
	configs map[string]*domain.GatewayConfig
}

var _ ports.GatewayRegistry = (*Gateways)(nil)

// NewGateways creates a registry holding cfgs.
func NewGateways(cfgs ...*domain.GatewayConfig) *Gateways {
	g := &Gateways{configs: make(map[string]*domain.GatewayConfig)}
	for _, c := range cfgs {
		g.Put(c)
	}
	return g
}

// Put stores a copy of cfg keyed by gateway code.
func (g *Gateways) Put(cfg *domain.GatewayConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := *cfg
	g.configs[cfg.GatewayCode] = &c
}

// GetActive implements ports.GatewayRegistry.
func (g *Gateways) GetActive(ctx context.Context, gatewayCode string) (*domain.GatewayConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.configs[gatewayCode]
	if !ok {
		return nil, domain.ErrGatewayNotFound.WithDetail("gateway_code", gatewayCode)
	}
	if !c.IsActive {
		return nil, domain.ErrGatewayInactive.WithDetail("gateway_code", gatewayCode)
	}
	cp := *c
	return &cp, nil
}

// GetByID implements ports.GatewayRegistry.
func (g *Gateways) GetByID(ctx context.Context, gatewayID int64) (*domain.GatewayConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.configs {
		if c.GatewayID == gatewayID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrGatewayNotFound.WithDetail("gateway_id", gatewayID)
}

// MaxTimeout implements ports.GatewayRegistry.
func (g *Gateways) MaxTimeout(ctx context.Context) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	max := time.Duration(domain.DefaultGatewayTimeoutSeconds) * time.Second
	found := false
	for _, c := range g.configs {
		if !c.IsActive {
			continue
		}
		if !found || c.Timeout() > max {
			max = c.Timeout()
			found = true
		}
	}
	return max, nil
}
