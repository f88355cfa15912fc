package ports

import (
	"context"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
)

// ClientWebhookStore persists merchant subscriptions and delivery attempts.
type ClientWebhookStore interface {
	ListSubscribedConfigs(ctx context.Context, clientID string, event domain.EventType) ([]*domain.ClientWebhookConfig, error)
	GetConfig(ctx context.Context, configID int64) (*domain.ClientWebhookConfig, error)
	SetConfigActive(ctx context.Context, configID int64, active bool) error

	CreateDelivery(ctx context.Context, delivery *domain.ClientWebhookDelivery) error
	GetDelivery(ctx context.Context, webhookID int64) (*domain.ClientWebhookDelivery, error)
	UpdateDelivery(ctx context.Context, delivery *domain.ClientWebhookDelivery) error

	// ClaimDueRetries moves due RETRY rows, and PENDING rows whose lease ran
	// out, to PENDING with next_retry_at = leaseUntil and returns them so that
	// only one sender attempts each row.
	ClaimDueRetries(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*domain.ClientWebhookDelivery, error)

	DeliveryStats(ctx context.Context, since time.Time) (*domain.DeliveryStats, error)
}
