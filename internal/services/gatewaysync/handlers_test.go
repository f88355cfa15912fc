package gatewaysync_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/services/gatewaysync"
	"github.com/kevin07696/gateway-sync/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTask enqueues kind for T1 and processes it directly.
func runTask(t *testing.T, h *harness, kind domain.SyncKind, pgTxnID *string) (*domain.SyncTask, gatewaysync.Result) {
	t.Helper()
	res, err := h.service.Enqueue(context.Background(), domain.EnqueueParams{
		TxnID:    "T1",
		PgTxnID:  pgTxnID,
		Kind:     kind,
		Priority: domain.PriorityMedium,
	}, gatewaysync.SourceAPI)
	require.NoError(t, err)

	tasks, err := h.queue.ClaimBatch(context.Background(), h.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, res.SyncID, tasks[0].SyncID)

	return tasks[0], h.processor.Process(context.Background(), tasks[0])
}

func TestProcessor_Status(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus domain.TransactionStatus
		wantCode   *string
		wantMsg    *string
		wantEvent  domain.EventType
	}{
		{
			name:       "status is upper-cased",
			body:       `{"status":"failed","pg_response_code":"05","resp_msg":"declined"}`,
			wantStatus: domain.TransactionStatusFailed,
			wantCode:   fixtures.StringPtr("05"),
			wantMsg:    fixtures.StringPtr("declined"),
			wantEvent:  domain.EventPaymentFailed,
		},
		{
			name:       "unchanged status raises no event",
			body:       `{"status":"PENDING"}`,
			wantStatus: domain.TransactionStatusPending,
		},
		{
			name:       "no status leaves the transaction alone",
			body:       `{"result":"ok"}`,
			wantStatus: domain.TransactionStatusPending,
		},
		{
			name:       "numeric response code",
			body:       `{"status":"SUCCESS","response_code":0}`,
			wantStatus: domain.TransactionStatusSuccess,
			wantCode:   fixtures.StringPtr("0"),
			wantEvent:  domain.EventPaymentSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway(t, cannedResponse{status: http.StatusOK, body: tt.body})
			h := newHarness(t, gw)
			h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").WithPgTxnID("PG-1").Build())

			_, result := runTask(t, h, domain.SyncKindStatus, nil)
			require.Equal(t, gatewaysync.OutcomeSuccess, result.Outcome, result.Error)

			txn := h.txn(t, "T1")
			assert.Equal(t, tt.wantStatus, txn.Status)
			assert.Equal(t, tt.wantCode, txn.PgResponseCode)
			assert.Equal(t, tt.wantMsg, txn.ResponseMessage)

			events := h.events.Events()
			if tt.wantEvent == "" {
				assert.Empty(t, events)
			} else {
				require.Len(t, events, 1)
				assert.Equal(t, tt.wantEvent, events[0].event)
				assert.Equal(t, "T1", events[0].data["txn_id"])
			}

			reqs := gw.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, "T1", reqs[0]["txn_id"])
			assert.Equal(t, "PG-1", reqs[0]["pg_txn_id"])
			assert.Equal(t, []string{"/status"}, gw.Paths())
		})
	}
}

func TestProcessor_TaskPgTxnIDWins(t *testing.T) {
	gw := newFakeGateway(t, cannedResponse{status: http.StatusOK, body: `{}`})
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").WithPgTxnID("PG-1").Build())

	_, result := runTask(t, h, domain.SyncKindStatus, fixtures.StringPtr("PG-override"))
	require.Equal(t, gatewaysync.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "PG-override", gw.Requests()[0]["pg_txn_id"])
}

func TestProcessor_Refund(t *testing.T) {
	gw := newFakeGateway(t, cannedResponse{status: http.StatusOK, body: `{
		"refund_status": "PROCESSED",
		"is_refunded": true,
		"refunded_amount": "40.50",
		"refund_message": "done",
		"refunded_date": "2025-01-16T08:30:00Z"
	}`})
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").WithStatus(domain.TransactionStatusSuccess).Build())

	_, result := runTask(t, h, domain.SyncKindRefund, nil)
	require.Equal(t, gatewaysync.OutcomeSuccess, result.Outcome, result.Error)

	txn := h.txn(t, "T1")
	assert.True(t, txn.IsRefunded)
	require.NotNil(t, txn.RefundStatusCode)
	assert.Equal(t, "PROCESSED", *txn.RefundStatusCode)
	require.NotNil(t, txn.RefundedAmount)
	assert.Equal(t, "40.5", txn.RefundedAmount.String())
	assert.Equal(t, fixtures.StringPtr("done"), txn.RefundMessage)
	require.NotNil(t, txn.RefundedDate)
	assert.Equal(t, time.Date(2025, 1, 16, 8, 30, 0, 0, time.UTC), *txn.RefundedDate)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)

	assert.Equal(t, []string{"/refunds/status"}, gw.Paths())

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventRefundProcessed, events[0].event)
	assert.Equal(t, "40.5", events[0].data["refunded_amount"])
}

func TestProcessor_RefundVariants(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantOutcome gatewaysync.Outcome
		wantCode    *string
		wantDate    bool
		wantEvent   domain.EventType
		wantErrPart string
	}{
		{
			name:        "no refund_status means no mutation",
			body:        `{"is_refunded":true}`,
			wantOutcome: gatewaysync.OutcomeSuccess,
		},
		{
			name:        "date ignored while not refunded",
			body:        `{"refund_status":"INITIATED","refunded_date":"2025-01-16"}`,
			wantOutcome: gatewaysync.OutcomeSuccess,
			wantCode:    fixtures.StringPtr("INITIATED"),
		},
		{
			name:        "rejection raises refund.failed",
			body:        `{"refund_status":"REJECTED","is_refunded":false}`,
			wantOutcome: gatewaysync.OutcomeSuccess,
			wantCode:    fixtures.StringPtr("REJECTED"),
			wantEvent:   domain.EventRefundFailed,
		},
		{
			name:        "bad amount is an internal error",
			body:        `{"refund_status":"PROCESSED","refunded_amount":"lots"}`,
			wantOutcome: gatewaysync.OutcomeRetryable,
			wantErrPart: "Internal error: invalid refunded_amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway(t, cannedResponse{status: http.StatusOK, body: tt.body})
			h := newHarness(t, gw)
			h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

			_, result := runTask(t, h, domain.SyncKindRefund, nil)
			assert.Equal(t, tt.wantOutcome, result.Outcome)
			if tt.wantErrPart != "" {
				assert.True(t, strings.HasPrefix(result.Error, tt.wantErrPart), result.Error)
			}

			txn := h.txn(t, "T1")
			assert.Equal(t, tt.wantCode, txn.RefundStatusCode)
			assert.False(t, txn.IsRefunded)
			assert.Nil(t, txn.RefundedDate)

			events := h.events.Events()
			if tt.wantEvent == "" {
				assert.Empty(t, events)
			} else {
				require.Len(t, events, 1)
				assert.Equal(t, tt.wantEvent, events[0].event)
			}
		})
	}
}

func TestProcessor_Settlement(t *testing.T) {
	gw := newFakeGateway(t, cannedResponse{status: http.StatusOK, body: `{
		"settlement_status": "SETTLED",
		"is_settled": "true",
		"settlement_date": "2025-01-17 00:00:00"
	}`})
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

	_, result := runTask(t, h, domain.SyncKindSettlement, nil)
	require.Equal(t, gatewaysync.OutcomeSuccess, result.Outcome, result.Error)

	txn := h.txn(t, "T1")
	assert.True(t, txn.IsSettled)
	assert.Equal(t, fixtures.StringPtr("SETTLED"), txn.SettlementStatus)
	require.NotNil(t, txn.SettlementDate)
	assert.Equal(t, time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), *txn.SettlementDate)

	assert.Equal(t, []string{"/api"}, gw.Paths())
	assert.Equal(t, "settlement_status", gw.Requests()[0]["operation"])

	logs := h.logs.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "SETTLEMENT_STATUS", logs[0].Operation)

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSettlementCompleted, events[0].event)
}

func TestProcessor_SettlementWithoutStatusIsNoop(t *testing.T) {
	gw := newFakeGateway(t, cannedResponse{status: http.StatusOK, body: `{"is_settled":true}`})
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

	_, result := runTask(t, h, domain.SyncKindSettlement, nil)
	require.Equal(t, gatewaysync.OutcomeSuccess, result.Outcome)

	txn := h.txn(t, "T1")
	assert.False(t, txn.IsSettled)
	assert.Nil(t, txn.SettlementStatus)
	assert.Nil(t, txn.UpdatedDate)
}

func TestProcessor_ProtocolErrorIsRetryable(t *testing.T) {
	gw := newFakeGateway(t, cannedResponse{status: http.StatusNotFound, body: `not here`})
	h := newHarness(t, gw)
	h.txns.Put(fixtures.NewTransaction("T1").WithGateway("ACME").Build())

	_, result := runTask(t, h, domain.SyncKindStatus, nil)
	assert.Equal(t, gatewaysync.OutcomeRetryable, result.Outcome)
	assert.Equal(t, "HTTP 404: not here", result.Error)
	assert.Nil(t, h.txn(t, "T1").UpdatedDate)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", gatewaysync.OutcomeSuccess.String())
	assert.Equal(t, "retryable", gatewaysync.OutcomeRetryable.String())
	assert.Equal(t, "terminal", gatewaysync.OutcomeTerminal.String())
}

// panickingTransactions blows up on every read.
type panickingTransactions struct{}

func (panickingTransactions) GetTransaction(ctx context.Context, txnID string) (*domain.Transaction, error) {
	panic("boom")
}

func (panickingTransactions) ApplyStatus(ctx context.Context, txnID string, update domain.StatusUpdate, now time.Time) error {
	return nil
}

func (panickingTransactions) ApplyRefund(ctx context.Context, txnID string, update domain.RefundUpdate, now time.Time) error {
	return nil
}

func (panickingTransactions) ApplySettlement(ctx context.Context, txnID string, update domain.SettlementUpdate, now time.Time) error {
	return nil
}

func (panickingTransactions) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}
