package fixtures

import (
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/shopspring/decimal"
)

// Epoch is the fixed start time used by tests running on a fake clock.
var Epoch = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// TransactionBuilder provides fluent API for building test transactions.
type TransactionBuilder struct {
	txn *domain.Transaction
}

// NewTransaction creates a PENDING transaction routed to the "razorpay" gateway.
func NewTransaction(txnID string) *TransactionBuilder {
	return &TransactionBuilder{
		txn: &domain.Transaction{
			TxnID:       txnID,
			ClientID:    "client-1",
			PaidAmount:  decimal.RequireFromString("100.00"),
			Status:      domain.TransactionStatusPending,
			PgName:      "razorpay",
			CreatedDate: Epoch,
		},
	}
}

func (b *TransactionBuilder) WithStatus(status domain.TransactionStatus) *TransactionBuilder {
	b.txn.Status = status
	return b
}

func (b *TransactionBuilder) WithClientID(clientID string) *TransactionBuilder {
	b.txn.ClientID = clientID
	return b
}

func (b *TransactionBuilder) WithGateway(pgName string) *TransactionBuilder {
	b.txn.PgName = pgName
	return b
}

func (b *TransactionBuilder) WithPgTxnID(pgTxnID string) *TransactionBuilder {
	b.txn.PgTxnID = &pgTxnID
	return b
}

func (b *TransactionBuilder) WithCreatedDate(t time.Time) *TransactionBuilder {
	b.txn.CreatedDate = t
	return b
}

func (b *TransactionBuilder) Build() *domain.Transaction {
	return b.txn
}

// GatewayBuilder builds gateway configurations.
type GatewayBuilder struct {
	cfg *domain.GatewayConfig
}

// NewGateway creates an active config whose endpoints all live under baseURL.
func NewGateway(code, baseURL string) *GatewayBuilder {
	refund := baseURL + "/refunds/status"
	return &GatewayBuilder{
		cfg: &domain.GatewayConfig{
			GatewayID:           1,
			GatewayCode:         code,
			GatewayName:         code,
			APIEndpoint:         baseURL + "/api",
			StatusCheckEndpoint: baseURL + "/status",
			RefundEndpoint:      &refund,
			APIKey:              "test-api-key",
			TimeoutSeconds:      domain.DefaultGatewayTimeoutSeconds,
			MaxRetryAttempts:    3,
			IsActive:            true,
			SupportsWebhook:     true,
			CreatedAt:           Epoch,
			UpdatedAt:           Epoch,
		},
	}
}

func (b *GatewayBuilder) WithID(id int64) *GatewayBuilder {
	b.cfg.GatewayID = id
	return b
}

func (b *GatewayBuilder) WithWebhookSecret(secret string) *GatewayBuilder {
	b.cfg.WebhookSecret = &secret
	return b
}

func (b *GatewayBuilder) WithoutRefundEndpoint() *GatewayBuilder {
	b.cfg.RefundEndpoint = nil
	return b
}

func (b *GatewayBuilder) WithTimeoutSeconds(secs int) *GatewayBuilder {
	b.cfg.TimeoutSeconds = secs
	return b
}

func (b *GatewayBuilder) Inactive() *GatewayBuilder {
	b.cfg.IsActive = false
	return b
}

func (b *GatewayBuilder) Build() *domain.GatewayConfig {
	return b.cfg
}

// NewClientWebhookConfig creates an active merchant subscription.
func NewClientWebhookConfig(configID int64, clientID, endpoint string, events ...domain.EventType) *domain.ClientWebhookConfig {
	return &domain.ClientWebhookConfig{
		ConfigID:         configID,
		ClientID:         clientID,
		EndpointURL:      endpoint,
		SecretKey:        "client-secret",
		EventsSubscribed: events,
		IsActive:         true,
		MaxRetryAttempts: 3,
		TimeoutSeconds:   30,
		CreatedBy:        "test",
		CreatedAt:        Epoch,
		UpdatedAt:        Epoch,
	}
}
