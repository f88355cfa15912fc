package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

// ClientWebhooks implements ports.ClientWebhookStore.
type ClientWebhooks struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	configs    map[int64]*domain.ClientWebhookConfig
	deliveries map[int64]*domain.ClientWebhookDelivery
	nextID     int64
}

var _ ports.ClientWebhookStore = (*ClientWebhooks)(nil)

// NewClientWebhooks creates a store holding cfgs.
func NewClientWebhooks(clock timeutil.Clock, cfgs ...*domain.ClientWebhookConfig) *ClientWebhooks {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &ClientWebhooks{
		clock:      clock,
		configs:    make(map[int64]*domain.ClientWebhookConfig),
		deliveries: make(map[int64]*domain.ClientWebhookDelivery),
	}
	for _, c := range cfgs {
		cp := *c
		s.configs[c.ConfigID] = &cp
	}
	return s
}

// ListSubscribedConfigs implements ports.ClientWebhookStore.
func (s *ClientWebhooks) ListSubscribedConfigs(ctx context.Context, clientID string, event domain.EventType) ([]*domain.ClientWebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ClientWebhookConfig
	for _, c := range s.configs {
		if c.ClientID == clientID && c.IsActive && c.Subscribes(event) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigID < out[j].ConfigID })
	return out, nil
}

// GetConfig implements ports.ClientWebhookStore.
func (s *ClientWebhooks) GetConfig(ctx context.Context, configID int64) (*domain.ClientWebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[configID]
	if !ok {
		return nil, domain.ErrWebhookConfigMissing.WithDetail("config_id", configID)
	}
	cp := *c
	return &cp, nil
}

// SetConfigActive implements ports.ClientWebhookStore.
func (s *ClientWebhooks) SetConfigActive(ctx context.Context, configID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[configID]
	if !ok {
		return domain.ErrWebhookConfigMissing.WithDetail("config_id", configID)
	}
	c.IsActive = active
	c.UpdatedAt = s.clock.Now()
	return nil
}

// CreateDelivery implements ports.ClientWebhookStore.
func (s *ClientWebhooks) CreateDelivery(ctx context.Context, d *domain.ClientWebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	d.WebhookID = s.nextID
	d.CreatedAt = s.clock.Now()
	cp := *d
	s.deliveries[d.WebhookID] = &cp
	return nil
}

// GetDelivery implements ports.ClientWebhookStore.
func (s *ClientWebhooks) GetDelivery(ctx context.Context, webhookID int64) (*domain.ClientWebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[webhookID]
	if !ok {
		return nil, domain.ErrDeliveryNotFound.WithDetail("webhook_id", webhookID)
	}
	cp := *d
	return &cp, nil
}

// UpdateDelivery implements ports.ClientWebhookStore.
func (s *ClientWebhooks) UpdateDelivery(ctx context.Context, d *domain.ClientWebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.WebhookID]; !ok {
		return domain.ErrDeliveryNotFound.WithDetail("webhook_id", d.WebhookID)
	}
	cp := *d
	s.deliveries[d.WebhookID] = &cp
	return nil
}

// ClaimDueRetries implements ports.ClientWebhookStore.
func (s *ClientWebhooks) ClaimDueRetries(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*domain.ClientWebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.ClientWebhookDelivery
	for _, d := range s.deliveries {
		claimable := d.DeliveryStatus == domain.DeliveryStatusRetry || d.DeliveryStatus == domain.DeliveryStatusPending
		if claimable &&
			d.NextRetryAt != nil && !d.NextRetryAt.After(now) &&
			d.Attempts < d.MaxAttempts {
			due = append(due, d)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*domain.ClientWebhookDelivery, len(due))
	for i, d := range due {
		d.DeliveryStatus = domain.DeliveryStatusPending
		lease := leaseUntil
		d.NextRetryAt = &lease
		cp := *d
		out[i] = &cp
	}
	return out, nil
}

// DeliveryStats implements ports.ClientWebhookStore.
func (s *ClientWebhooks) DeliveryStats(ctx context.Context, since time.Time) (*domain.DeliveryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.DeliveryStats{}
	for _, d := range s.deliveries {
		if d.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		switch d.DeliveryStatus {
		case domain.DeliveryStatusSuccess:
			stats.Successful++
		case domain.DeliveryStatusFailed:
			stats.Failed++
		case domain.DeliveryStatusRetry:
			stats.PendingRetry++
		}
	}
	stats.Finalize()
	return stats, nil
}

// Deliveries returns every delivery row ordered by id.
func (s *ClientWebhooks) Deliveries() []*domain.ClientWebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.ClientWebhookDelivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WebhookID < out[j].WebhookID })
	return out
}
