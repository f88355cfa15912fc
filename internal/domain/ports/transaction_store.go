package ports

import (
	"context"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
)

// TransactionStore reads and mutates transaction_detail rows. Updates are
// last-writer-wins on the touched columns.
type TransactionStore interface {
	GetTransaction(ctx context.Context, txnID string) (*domain.Transaction, error)
	ApplyStatus(ctx context.Context, txnID string, update domain.StatusUpdate, now time.Time) error
	ApplyRefund(ctx context.Context, txnID string, update domain.RefundUpdate, now time.Time) error
	ApplySettlement(ctx context.Context, txnID string, update domain.SettlementUpdate, now time.Time) error

	// ListStalePending returns PENDING transactions created before cutoff that
	// have no active STATUS task, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error)
}
