package domain

import (
	"encoding/json"
	"time"
)

// SyncLog records one HTTP attempt against a gateway. Rows are append-only.
type SyncLog struct {
	CreatedAt       time.Time         `json:"created_at"`
	ResponseStatus  *int              `json:"response_status,omitempty"`
	ResponseTimeMS  *int64            `json:"response_time_ms,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	RequestBody     json.RawMessage   `json:"request_body,omitempty"`
	ResponseBody    json.RawMessage   `json:"response_body,omitempty"`
	Operation       string            `json:"operation"`
	RequestURL      string            `json:"request_url"`
	RequestMethod   string            `json:"request_method"`
	LogID           int64             `json:"log_id"`
	SyncID          int64             `json:"sync_queue_id"`
	Success         bool              `json:"success"`
}

// WebhookType is the classification of an inbound gateway callback.
type WebhookType string

const (
	WebhookTypePayment    WebhookType = "PAYMENT"
	WebhookTypeRefund     WebhookType = "REFUND"
	WebhookTypeSettlement WebhookType = "SETTLEMENT"
	WebhookTypeUnknown    WebhookType = "UNKNOWN"
)

// InboundWebhookLog is the audit row written for every inbound POST.
type InboundWebhookLog struct {
	CreatedAt        time.Time         `json:"created_at"`
	TxnID            *string           `json:"txn_id,omitempty"`
	PgTxnID          *string           `json:"pg_txn_id,omitempty"`
	ProcessingTimeMS *int64            `json:"processing_time_ms,omitempty"`
	RequestHeaders   map[string]string `json:"request_headers"`
	RequestBody      json.RawMessage   `json:"request_body"`
	ResponseBody     json.RawMessage   `json:"response_body,omitempty"`
	GatewayCode      string            `json:"gateway_code"`
	WebhookType      WebhookType       `json:"webhook_type"`
	IPAddress        string            `json:"ip_address"`
	LogID            int64             `json:"log_id"`
	ResponseStatus   int               `json:"response_status"`
	SignatureValid   bool              `json:"signature_valid"`
	Processed        bool              `json:"processed"`
}
