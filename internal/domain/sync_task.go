package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SyncKind identifies which gateway-side aspect of a transaction is probed.
type SyncKind string

const (
	SyncKindStatus     SyncKind = "STATUS"
	SyncKindRefund     SyncKind = "REFUND"
	SyncKindSettlement SyncKind = "SETTLEMENT"
)

// ParseSyncKind accepts the canonical names as well as the legacy
// STATUS_CHECK / REFUND_STATUS / SETTLEMENT_STATUS spellings.
func ParseSyncKind(s string) (SyncKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STATUS", "STATUS_CHECK":
		return SyncKindStatus, nil
	case "REFUND", "REFUND_STATUS":
		return SyncKindRefund, nil
	case "SETTLEMENT", "SETTLEMENT_STATUS":
		return SyncKindSettlement, nil
	}
	return "", ErrInvalidKind.WithDetail("kind", s)
}

// Operation is the name written to gateway_sync_logs for a probe of this kind.
func (k SyncKind) Operation() string {
	switch k {
	case SyncKindRefund:
		return "REFUND_STATUS"
	case SyncKindSettlement:
		return "SETTLEMENT_STATUS"
	default:
		return "STATUS_CHECK"
	}
}

// Priority orders claims; lower values are claimed first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

// Validate rejects anything outside {1,2,3}.
func (p Priority) Validate() error {
	if p < PriorityHigh || p > PriorityLow {
		return ErrInvalidPriority.WithDetail("priority", int(p))
	}
	return nil
}

// SyncState is the lifecycle state of a queue row.
type SyncState string

const (
	SyncStatePending    SyncState = "PENDING"
	SyncStateProcessing SyncState = "PROCESSING"
	SyncStateCompleted  SyncState = "COMPLETED"
	SyncStateFailed     SyncState = "FAILED"
)

// DefaultMaxAttempts is used when a task is enqueued without an explicit bound.
const DefaultMaxAttempts = 3

// SyncTask is one row of gateway_sync_queue.
type SyncTask struct {
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	PgTxnID      *string         `json:"pg_txn_id,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	RequestData  json.RawMessage `json:"request_data,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	TxnID        string          `json:"txn_id"`
	Kind         SyncKind        `json:"kind"`
	State        SyncState       `json:"state"`
	SyncID       int64           `json:"sync_id"`
	Priority     Priority        `json:"priority"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
}

// IsActive reports whether the row holds the (txn_id, kind) slot.
func (t *SyncTask) IsActive() bool {
	return t.State == SyncStatePending || t.State == SyncStateProcessing
}

// IsTerminal reports whether the task will never be claimed again on its own.
func (t *SyncTask) IsTerminal() bool {
	return t.State == SyncStateCompleted ||
		(t.State == SyncStateFailed && t.Attempts >= t.MaxAttempts)
}

// CanBeReset reports whether an operator may push the task back to PENDING.
func (t *SyncTask) CanBeReset() bool {
	return t.State == SyncStateFailed || t.State == SyncStateCompleted
}

// IsDueForRetry reports whether a failed task may be claimed again at now.
func (t *SyncTask) IsDueForRetry(now time.Time) bool {
	return t.State == SyncStateFailed &&
		t.Attempts < t.MaxAttempts &&
		t.NextRetryAt != nil &&
		!t.NextRetryAt.After(now)
}

func (t *SyncTask) String() string {
	return fmt.Sprintf("sync %d: %s %s (%s)", t.SyncID, t.TxnID, t.Kind, t.State)
}

// EnqueueParams describes a new probe request.
type EnqueueParams struct {
	PgTxnID     *string
	RequestData json.RawMessage
	TxnID       string
	Kind        SyncKind
	Priority    Priority
	MaxAttempts int
}

// Validate checks the parameters before anything touches the store.
func (p EnqueueParams) Validate() error {
	if strings.TrimSpace(p.TxnID) == "" {
		return ErrValidationMissingField.WithDetail("field", "txn_id")
	}
	if _, err := ParseSyncKind(string(p.Kind)); err != nil {
		return err
	}
	return p.Priority.Validate()
}
