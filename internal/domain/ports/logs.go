package ports

import (
	"context"

	"github.com/kevin07696/gateway-sync/internal/domain"
)

// SyncLogStore appends one row per gateway HTTP attempt.
type SyncLogStore interface {
	CreateSyncLog(ctx context.Context, log *domain.SyncLog) error
	ListSyncLogs(ctx context.Context, syncID int64) ([]*domain.SyncLog, error)
}

// WebhookLogFilter narrows inbound webhook log listings.
type WebhookLogFilter struct {
	GatewayCode string
	TxnID       string
	Limit       int
}

// WebhookLogStore persists the inbound audit trail. A row is created as soon
// as the request arrives and finalized once the outcome is known.
type WebhookLogStore interface {
	CreateWebhookLog(ctx context.Context, log *domain.InboundWebhookLog) error
	UpdateWebhookLog(ctx context.Context, log *domain.InboundWebhookLog) error
	ListWebhookLogs(ctx context.Context, filter WebhookLogFilter) ([]*domain.InboundWebhookLog, error)
}
