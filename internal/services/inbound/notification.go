package inbound

import (
	"strings"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/pkg/jsonfield"
	"github.com/shopspring/decimal"
)

// Notification is a classified gateway callback. The concrete type is one of
// PaymentNotification, RefundNotification, SettlementNotification or
// UnknownNotification.
type Notification interface {
	Type() domain.WebhookType
}

// PaymentNotification reports a payment outcome.
type PaymentNotification struct {
	ResponseCode    *string
	ResponseMessage *string
	Status          domain.TransactionStatus
}

// RefundNotification reports refund state. Nil fields were absent from the
// callback and leave the stored value alone.
type RefundNotification struct {
	RefundStatus   *string
	IsRefunded     *bool
	RefundedAmount *decimal.Decimal
	RefundMessage  *string
	RefundedDate   *time.Time
}

// SettlementNotification reports settlement state.
type SettlementNotification struct {
	SettlementStatus *string
	IsSettled        *bool
	SettlementDate   *time.Time
}

// UnknownNotification is a callback none of the rules recognised.
type UnknownNotification struct{}

func (PaymentNotification) Type() domain.WebhookType    { return domain.WebhookTypePayment }
func (RefundNotification) Type() domain.WebhookType     { return domain.WebhookTypeRefund }
func (SettlementNotification) Type() domain.WebhookType { return domain.WebhookTypeSettlement }
func (UnknownNotification) Type() domain.WebhookType    { return domain.WebhookTypeUnknown }

// Classify decides the callback type from well-known keys first and the
// event_type field second.
func Classify(body map[string]interface{}) domain.WebhookType {
	switch {
	case jsonfield.Has(body, "payment_status"), jsonfield.Has(body, "transaction_status"):
		return domain.WebhookTypePayment
	case jsonfield.Has(body, "refund_status"), jsonfield.Has(body, "refund_id"):
		return domain.WebhookTypeRefund
	case jsonfield.Has(body, "settlement"), jsonfield.Has(body, "settlement_status"):
		return domain.WebhookTypeSettlement
	}

	if event, ok := jsonfield.String(body, "event_type"); ok {
		upper := strings.ToUpper(*event)
		switch {
		case strings.Contains(upper, "PAYMENT"):
			return domain.WebhookTypePayment
		case strings.Contains(upper, "REFUND"):
			return domain.WebhookTypeRefund
		case strings.Contains(upper, "SETTLEMENT"):
			return domain.WebhookTypeSettlement
		}
	}
	return domain.WebhookTypeUnknown
}

// References pulls the local and gateway transaction ids out of a callback.
func References(body map[string]interface{}) (txnID, pgTxnID *string) {
	txnID = nonEmpty(jsonfield.FirstString(body, "txn_id", "transaction_id", "order_id"))
	pgTxnID = nonEmpty(jsonfield.FirstString(body, "pg_txn_id", "gateway_txn_id", "reference_id"))
	return txnID, pgTxnID
}

// Parse classifies body and decodes the fields its type carries.
func Parse(body map[string]interface{}) (Notification, error) {
	switch Classify(body) {
	case domain.WebhookTypePayment:
		n := PaymentNotification{
			ResponseCode:    jsonfield.FirstString(body, "pg_response_code"),
			ResponseMessage: jsonfield.FirstString(body, "response_message", "resp_msg"),
		}
		if s := jsonfield.FirstString(body, "status", "payment_status", "transaction_status"); s != nil {
			n.Status = domain.TransactionStatus(strings.ToUpper(strings.TrimSpace(*s)))
		}
		return n, nil

	case domain.WebhookTypeRefund:
		n := RefundNotification{
			RefundStatus:  jsonfield.FirstString(body, "refund_status"),
			IsRefunded:    optionalBool(body, "is_refunded"),
			RefundMessage: jsonfield.FirstString(body, "refund_message"),
		}
		var err error
		if n.RefundedAmount, err = jsonfield.Decimal(body, "refunded_amount"); err != nil {
			return nil, err
		}
		if n.RefundedDate, err = jsonfield.Time(body, "refunded_date"); err != nil {
			return nil, err
		}
		return n, nil

	case domain.WebhookTypeSettlement:
		n := SettlementNotification{
			SettlementStatus: jsonfield.FirstString(body, "settlement_status"),
			IsSettled:        optionalBool(body, "is_settled"),
		}
		var err error
		if n.SettlementDate, err = jsonfield.Time(body, "settlement_date"); err != nil {
			return nil, err
		}
		return n, nil
	}
	return UnknownNotification{}, nil
}

// Update merges the notification into the stored refund state.
func (n RefundNotification) Update(current *domain.Transaction) domain.RefundUpdate {
	update := domain.RefundUpdate{
		RefundStatusCode: n.RefundStatus,
		RefundedAmount:   n.RefundedAmount,
		RefundMessage:    n.RefundMessage,
		RefundedDate:     n.RefundedDate,
		IsRefunded:       current.IsRefunded,
	}
	if n.IsRefunded != nil {
		update.IsRefunded = *n.IsRefunded
	}
	return update
}

// Update merges the notification into the stored settlement state.
func (n SettlementNotification) Update(current *domain.Transaction) domain.SettlementUpdate {
	update := domain.SettlementUpdate{
		SettlementStatus: n.SettlementStatus,
		SettlementDate:   n.SettlementDate,
		IsSettled:        current.IsSettled,
	}
	if n.IsSettled != nil {
		update.IsSettled = *n.IsSettled
	}
	return update
}

func optionalBool(body map[string]interface{}, key string) *bool {
	v, ok := jsonfield.Bool(body, key)
	if !ok {
		return nil
	}
	return &v
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
