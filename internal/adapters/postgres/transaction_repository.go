package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/gateway-sync/internal/converters"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

const transactionColumns = `txn_id, client_id, paid_amount, status, pg_name, pg_txn_id,
	pg_response_code, resp_msg, refund_status_code, is_refunded, refunded_amount,
	refunded_date, refund_message, is_settled, settlement_date, settlement_status,
	created_date, updated_date`

// TransactionRepository implements ports.TransactionStore on transaction_detail.
type TransactionRepository struct {
	db ports.DBPort
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db ports.DBPort) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t                domain.Transaction
		status           string
		pgName           pgtype.Text
		paidAmount       pgtype.Numeric
		refundedAmount   pgtype.Numeric
		pgTxnID          pgtype.Text
		pgResponseCode   pgtype.Text
		respMsg          pgtype.Text
		refundStatusCode pgtype.Text
		refundMessage    pgtype.Text
		settlementStatus pgtype.Text
		refundedDate     pgtype.Timestamptz
		settlementDate   pgtype.Timestamptz
		updatedDate      pgtype.Timestamptz
	)

	err := row.Scan(
		&t.TxnID, &t.ClientID, &paidAmount, &status, &pgName, &pgTxnID,
		&pgResponseCode, &respMsg, &refundStatusCode, &t.IsRefunded, &refundedAmount,
		&refundedDate, &refundMessage, &t.IsSettled, &settlementDate, &settlementStatus,
		&t.CreatedDate, &updatedDate,
	)
	if err != nil {
		return nil, err
	}

	if paidAmount.Valid {
		amount, err := converters.NumericToDecimal(paidAmount)
		if err != nil {
			return nil, fmt.Errorf("paid_amount: %w", err)
		}
		t.PaidAmount = amount
	}
	if refundedAmount.Valid {
		amount, err := converters.NumericToDecimal(refundedAmount)
		if err != nil {
			return nil, fmt.Errorf("refunded_amount: %w", err)
		}
		t.RefundedAmount = &amount
	}

	t.Status = domain.TransactionStatus(status)
	t.PgName = pgName.String
	t.PgTxnID = converters.TextPtr(pgTxnID)
	t.PgResponseCode = converters.TextPtr(pgResponseCode)
	t.ResponseMessage = converters.TextPtr(respMsg)
	t.RefundStatusCode = converters.TextPtr(refundStatusCode)
	t.RefundMessage = converters.TextPtr(refundMessage)
	t.SettlementStatus = converters.TextPtr(settlementStatus)
	t.RefundedDate = converters.TimePtr(refundedDate)
	t.SettlementDate = converters.TimePtr(settlementDate)
	t.UpdatedDate = converters.TimePtr(updatedDate)
	t.CreatedDate = t.CreatedDate.UTC()

	return &t, nil
}

// GetTransaction loads a transaction by txn_id.
func (r *TransactionRepository) GetTransaction(ctx context.Context, txnID string) (*domain.Transaction, error) {
	txn, err := scanTransaction(r.db.GetDB().QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transaction_detail WHERE txn_id = $1`, txnID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound.WithDetail("txn_id", txnID)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", txnID, err)
	}
	return txn, nil
}

// ApplyStatus writes the gateway-reported payment outcome.
func (r *TransactionRepository) ApplyStatus(ctx context.Context, txnID string, update domain.StatusUpdate, now time.Time) error {
	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE transaction_detail
		SET status = COALESCE(NULLIF($2, ''), status),
		    pg_response_code = COALESCE($3, pg_response_code),
		    resp_msg = COALESCE($4, resp_msg),
		    updated_date = $5
		WHERE txn_id = $1`,
		txnID, string(update.Status), update.ResponseCode, update.ResponseMessage, now)
	return checkTransactionUpdate(txnID, "status", tag.RowsAffected(), err)
}

// ApplyRefund writes refund fields reported by the gateway.
func (r *TransactionRepository) ApplyRefund(ctx context.Context, txnID string, update domain.RefundUpdate, now time.Time) error {
	amount, err := converters.DecimalToNumeric(update.RefundedAmount)
	if err != nil {
		return err
	}

	refundedDate := converters.ToNullableTimestamptz(update.RefundedDate)

	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE transaction_detail
		SET is_refunded = $2,
		    refund_status_code = COALESCE($3, refund_status_code),
		    refunded_amount = COALESCE($4, refunded_amount),
		    refund_message = COALESCE($5, refund_message),
		    refunded_date = COALESCE($6, refunded_date),
		    updated_date = $7
		WHERE txn_id = $1`,
		txnID, update.IsRefunded, update.RefundStatusCode, amount, update.RefundMessage, refundedDate, now)
	return checkTransactionUpdate(txnID, "refund", tag.RowsAffected(), err)
}

// ApplySettlement writes settlement fields reported by the gateway.
func (r *TransactionRepository) ApplySettlement(ctx context.Context, txnID string, update domain.SettlementUpdate, now time.Time) error {
	settlementDate := converters.ToNullableTimestamptz(update.SettlementDate)

	tag, err := r.db.GetDB().Exec(ctx, `
		UPDATE transaction_detail
		SET is_settled = $2,
		    settlement_status = COALESCE($3, settlement_status),
		    settlement_date = COALESCE($4, settlement_date),
		    updated_date = $5
		WHERE txn_id = $1`,
		txnID, update.IsSettled, update.SettlementStatus, settlementDate, now)
	return checkTransactionUpdate(txnID, "settlement", tag.RowsAffected(), err)
}

// ListStalePending feeds the pending-probe sweeper.
func (r *TransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error) {
	rows, err := r.db.GetDB().Query(ctx, `
		SELECT `+prefixed("t", transactionColumns)+`
		FROM transaction_detail t
		WHERE t.status = 'PENDING'
		  AND t.created_date < $1
		  AND NOT EXISTS (
			SELECT 1 FROM gateway_sync_queue q
			WHERE q.txn_id = t.txn_id
			  AND q.sync_type = 'STATUS'
			  AND q.status IN ('PENDING', 'PROCESSING')
		  )
		ORDER BY t.created_date
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func checkTransactionUpdate(txnID, what string, affected int64, err error) error {
	if err != nil {
		return fmt.Errorf("update transaction %s %s: %w", txnID, what, err)
	}
	if affected == 0 {
		return domain.ErrTransactionNotFound.WithDetail("txn_id", txnID)
	}
	return nil
}
