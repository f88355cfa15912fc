package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

// Transactions implements ports.TransactionStore. ListStalePending consults
// the queue, when one is attached, for active STATUS tasks.
type Transactions struct {
	mu    sync.Mutex
	txns  map[string]*domain.Transaction
	queue *SyncQueue
}

var _ ports.TransactionStore = (*Transactions)(nil)

// NewTransactions creates an empty store.
func NewTransactions(queue *SyncQueue) *Transactions {
	return &Transactions{txns: make(map[string]*domain.Transaction), queue: queue}
}

// Put stores a copy of txn.
func (s *Transactions) Put(txn *domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *txn
	s.txns[txn.TxnID] = &c
}

// GetTransaction implements ports.TransactionStore.
func (s *Transactions) GetTransaction(ctx context.Context, txnID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[txnID]
	if !ok {
		return nil, domain.ErrTransactionNotFound.WithDetail("txn_id", txnID)
	}
	c := *t
	return &c, nil
}

func (s *Transactions) mutate(txnID string, now time.Time, fn func(*domain.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[txnID]
	if !ok {
		return domain.ErrTransactionNotFound.WithDetail("txn_id", txnID)
	}
	fn(t)
	t.UpdatedDate = &now
	return nil
}

// ApplyStatus implements ports.TransactionStore.
func (s *Transactions) ApplyStatus(ctx context.Context, txnID string, update domain.StatusUpdate, now time.Time) error {
	return s.mutate(txnID, now, update.Apply)
}

// ApplyRefund implements ports.TransactionStore.
func (s *Transactions) ApplyRefund(ctx context.Context, txnID string, update domain.RefundUpdate, now time.Time) error {
	return s.mutate(txnID, now, update.Apply)
}

// ApplySettlement implements ports.TransactionStore.
func (s *Transactions) ApplySettlement(ctx context.Context, txnID string, update domain.SettlementUpdate, now time.Time) error {
	return s.mutate(txnID, now, update.Apply)
}

// ListStalePending implements ports.TransactionStore.
func (s *Transactions) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error) {
	active := map[string]bool{}
	if s.queue != nil {
		for _, t := range s.queue.All() {
			if t.Kind == domain.SyncKindStatus && t.IsActive() {
				active[t.TxnID] = true
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Transaction
	for _, t := range s.txns {
		if t.IsPending() && t.CreatedDate.Before(cutoff) && !active[t.TxnID] {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.Before(out[j].CreatedDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
