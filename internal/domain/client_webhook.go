package domain

import (
	"encoding/json"
	"time"
)

// EventType names an outbound notification a merchant can subscribe to.
type EventType string

const (
	EventPaymentSuccess      EventType = "payment.success"
	EventPaymentFailed       EventType = "payment.failed"
	EventPaymentPending      EventType = "payment.pending"
	EventRefundProcessed     EventType = "refund.processed"
	EventRefundFailed        EventType = "refund.failed"
	EventSettlementCompleted EventType = "settlement.completed"
	EventTransactionDisputed EventType = "transaction.disputed"
	EventKYCApproved         EventType = "kyc.approved"
	EventKYCRejected         EventType = "kyc.rejected"
	EventWebhookTest         EventType = "webhook.test"
)

var knownEvents = map[EventType]struct{}{
	EventPaymentSuccess:      {},
	EventPaymentFailed:       {},
	EventPaymentPending:      {},
	EventRefundProcessed:     {},
	EventRefundFailed:        {},
	EventSettlementCompleted: {},
	EventTransactionDisputed: {},
	EventKYCApproved:         {},
	EventKYCRejected:         {},
	EventWebhookTest:         {},
}

// IsKnownEvent reports whether merchants can subscribe to e.
func IsKnownEvent(e EventType) bool {
	_, ok := knownEvents[e]
	return ok
}

// PaymentEventFor maps a transaction status to the outbound event it raises.
func PaymentEventFor(status TransactionStatus) (EventType, bool) {
	switch status {
	case TransactionStatusSuccess:
		return EventPaymentSuccess, true
	case TransactionStatusFailed:
		return EventPaymentFailed, true
	case TransactionStatusPending:
		return EventPaymentPending, true
	}
	return "", false
}

// ClientWebhookConfig is a merchant subscription (webhook_config).
type ClientWebhookConfig struct {
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	ClientID         string      `json:"client_id" validate:"required"`
	EndpointURL      string      `json:"endpoint_url" validate:"required,url"`
	SecretKey        string      `json:"-" validate:"required"`
	CreatedBy        string      `json:"created_by"`
	EventsSubscribed []EventType `json:"events_subscribed" validate:"required,min=1"`
	ConfigID         int64       `json:"config_id"`
	MaxRetryAttempts int         `json:"max_retry_attempts" validate:"min=0,max=10"`
	TimeoutSeconds   int         `json:"timeout_seconds" validate:"min=1,max=120"`
	IsActive         bool        `json:"is_active"`
}

// Subscribes reports whether the config wants event e.
func (c *ClientWebhookConfig) Subscribes(e EventType) bool {
	for _, s := range c.EventsSubscribed {
		if s == e {
			return true
		}
	}
	return false
}

// Timeout returns the per-delivery HTTP deadline.
func (c *ClientWebhookConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultGatewayTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DeliveryStatus is the state of one outbound delivery row.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "PENDING"
	DeliveryStatusSuccess DeliveryStatus = "SUCCESS"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
	DeliveryStatusRetry   DeliveryStatus = "RETRY"
)

// ClientWebhookDelivery is one row of webhook_logs. Payload holds the exact
// canonical bytes that are signed and sent on every attempt.
type ClientWebhookDelivery struct {
	CreatedAt      time.Time       `json:"created_at"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	HTTPStatusCode *int            `json:"http_status_code,omitempty"`
	ResponseBody   *string         `json:"response_body,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	SignatureSent  *string         `json:"signature_sent,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	ClientID       string          `json:"client_id"`
	EventType      EventType       `json:"event_type"`
	EndpointURL    string          `json:"endpoint_url"`
	IdempotencyKey string          `json:"idempotency_key"`
	DeliveryStatus DeliveryStatus  `json:"delivery_status"`
	WebhookID      int64           `json:"webhook_id"`
	ConfigID       int64           `json:"config_id"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
}

// WebhookEnvelope is the JSON document POSTed to merchants.
type WebhookEnvelope struct {
	Data      map[string]interface{} `json:"data"`
	EventType EventType              `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
}
