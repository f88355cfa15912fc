package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the payment outcome stored on transaction_detail.
// Gateways may report other upper-case values; they are stored verbatim.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is a payment record owned by the back-office. The engine only
// reads it and mutates the gateway-derived fields.
type Transaction struct {
	CreatedDate      time.Time         `json:"created_date"`
	UpdatedDate      *time.Time        `json:"updated_date,omitempty"`
	RefundedDate     *time.Time        `json:"refunded_date,omitempty"`
	SettlementDate   *time.Time        `json:"settlement_date,omitempty"`
	RefundedAmount   *decimal.Decimal  `json:"refunded_amount,omitempty"`
	PgTxnID          *string           `json:"pg_txn_id,omitempty"`
	PgResponseCode   *string           `json:"pg_response_code,omitempty"`
	ResponseMessage  *string           `json:"resp_msg,omitempty"`
	RefundStatusCode *string           `json:"refund_status_code,omitempty"`
	RefundMessage    *string           `json:"refund_message,omitempty"`
	SettlementStatus *string           `json:"settlement_status,omitempty"`
	TxnID            string            `json:"txn_id"`
	ClientID         string            `json:"client_id"`
	PgName           string            `json:"pg_name"`
	Status           TransactionStatus `json:"status"`
	PaidAmount       decimal.Decimal   `json:"paid_amount"`
	IsRefunded       bool              `json:"is_refunded"`
	IsSettled        bool              `json:"is_settled"`
}

// IsPending reports whether the payment outcome is still unknown locally.
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// StatusUpdate carries the payment outcome reported by a gateway.
// Nil fields and an empty Status are left untouched.
type StatusUpdate struct {
	ResponseCode    *string
	ResponseMessage *string
	Status          TransactionStatus
}

// RefundUpdate carries refund state reported by a gateway.
type RefundUpdate struct {
	RefundedAmount   *decimal.Decimal
	RefundedDate     *time.Time
	RefundStatusCode *string
	RefundMessage    *string
	IsRefunded       bool
}

// SettlementUpdate carries settlement state reported by a gateway.
type SettlementUpdate struct {
	SettlementDate   *time.Time
	SettlementStatus *string
	IsSettled        bool
}

// Apply mutates the in-memory transaction the same way the store does.
func (u StatusUpdate) Apply(t *Transaction) {
	if u.Status != "" {
		t.Status = u.Status
	}
	if u.ResponseCode != nil {
		t.PgResponseCode = u.ResponseCode
	}
	if u.ResponseMessage != nil {
		t.ResponseMessage = u.ResponseMessage
	}
}

// Apply mutates the in-memory transaction the same way the store does.
func (u RefundUpdate) Apply(t *Transaction) {
	t.IsRefunded = u.IsRefunded
	if u.RefundStatusCode != nil {
		t.RefundStatusCode = u.RefundStatusCode
	}
	if u.RefundedAmount != nil {
		t.RefundedAmount = u.RefundedAmount
	}
	if u.RefundMessage != nil {
		t.RefundMessage = u.RefundMessage
	}
	if u.RefundedDate != nil {
		t.RefundedDate = u.RefundedDate
	}
}

// Apply mutates the in-memory transaction the same way the store does.
func (u SettlementUpdate) Apply(t *Transaction) {
	t.IsSettled = u.IsSettled
	if u.SettlementStatus != nil {
		t.SettlementStatus = u.SettlementStatus
	}
	if u.SettlementDate != nil {
		t.SettlementDate = u.SettlementDate
	}
}
