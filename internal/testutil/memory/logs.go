package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

// SyncLogs implements ports.SyncLogStore.
type SyncLogs struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	logs   []*domain.SyncLog
	nextID int64
}

var _ ports.SyncLogStore = (*SyncLogs)(nil)

// NewSyncLogs creates an empty log store.
func NewSyncLogs(clock timeutil.Clock) *SyncLogs {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyncLogs{clock: clock}
}

// CreateSyncLog implements ports.SyncLogStore.
func (s *SyncLogs) CreateSyncLog(ctx context.Context, log *domain.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	log.LogID = s.nextID
	log.CreatedAt = s.clock.Now()
	c := *log
	s.logs = append(s.logs, &c)
	return nil
}

// ListSyncLogs implements ports.SyncLogStore.
func (s *SyncLogs) ListSyncLogs(ctx context.Context, syncID int64) ([]*domain.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.SyncLog
	for _, l := range s.logs {
		if l.SyncID == syncID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

// All returns every row in insertion order.
func (s *SyncLogs) All() []*domain.SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.SyncLog, len(s.logs))
	for i, l := range s.logs {
		c := *l
		out[i] = &c
	}
	return out
}

// WebhookLogs implements ports.WebhookLogStore.
type WebhookLogs struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	logs   map[int64]*domain.InboundWebhookLog
	nextID int64
}

var _ ports.WebhookLogStore = (*WebhookLogs)(nil)

// NewWebhookLogs creates an empty inbound audit store.
func NewWebhookLogs(clock timeutil.Clock) *WebhookLogs {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &WebhookLogs{clock: clock, logs: make(map[int64]*domain.InboundWebhookLog)}
}

// CreateWebhookLog implements ports.WebhookLogStore.
func (s *WebhookLogs) CreateWebhookLog(ctx context.Context, log *domain.InboundWebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	log.LogID = s.nextID
	log.CreatedAt = s.clock.Now()
	c := *log
	s.logs[log.LogID] = &c
	return nil
}

// UpdateWebhookLog implements ports.WebhookLogStore.
func (s *WebhookLogs) UpdateWebhookLog(ctx context.Context, log *domain.InboundWebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[log.LogID]; !ok {
		return domain.ErrDatabaseError.WithDetail("log_id", log.LogID)
	}
	c := *log
	s.logs[log.LogID] = &c
	return nil
}

// ListWebhookLogs implements ports.WebhookLogStore, newest first.
func (s *WebhookLogs) ListWebhookLogs(ctx context.Context, filter ports.WebhookLogFilter) ([]*domain.InboundWebhookLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.InboundWebhookLog
	for _, l := range s.logs {
		if filter.GatewayCode != "" && l.GatewayCode != filter.GatewayCode {
			continue
		}
		if filter.TxnID != "" && (l.TxnID == nil || *l.TxnID != filter.TxnID) {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogID > out[j].LogID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
