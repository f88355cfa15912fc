package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/gateway-sync/internal/domain"
	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

// StatsRepository serves the operator aggregates. Each call reads from a
// single repeatable-read snapshot.
type StatsRepository struct {
	db ports.DBPort
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db ports.DBPort) *StatsRepository {
	return &StatsRepository{db: db}
}

// QueueStats backs GET /queue/stats.
func (r *StatsRepository) QueueStats(ctx context.Context, now time.Time) (*domain.QueueStats, error) {
	stats := &domain.QueueStats{
		Timestamp: now,
		SLATarget: "30 seconds",
	}

	err := r.db.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		o := &stats.Overall
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE status = 'PENDING'),
			       COUNT(*) FILTER (WHERE status = 'PROCESSING'),
			       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			       COUNT(*) FILTER (WHERE status = 'FAILED'),
			       COALESCE(AVG(attempts), 0)::float8
			FROM gateway_sync_queue`,
		).Scan(&o.Total, &o.Pending, &o.Processing, &o.Completed, &o.Failed, &o.AvgAttempts)
		if err != nil {
			return fmt.Errorf("overall stats: %w", err)
		}

		rc := &stats.Recent
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			       COUNT(*) FILTER (WHERE status = 'FAILED')
			FROM gateway_sync_queue
			WHERE created_at >= $1`, now.Add(-time.Hour),
		).Scan(&rc.Total, &rc.Completed, &rc.Failed)
		if err != nil {
			return fmt.Errorf("recent stats: %w", err)
		}

		if stats.Performance, err = performanceSince(ctx, tx, now.Add(-24*time.Hour)); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT priority, COUNT(*),
			       COUNT(*) FILTER (WHERE status = 'PENDING'),
			       COUNT(*) FILTER (WHERE status = 'FAILED')
			FROM gateway_sync_queue
			GROUP BY priority
			ORDER BY priority`)
		if err != nil {
			return fmt.Errorf("priority breakdown: %w", err)
		}
		stats.PriorityBreakdown, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PriorityBreakdown, error) {
			var (
				b        domain.PriorityBreakdown
				priority int16
			)
			err := row.Scan(&priority, &b.Count, &b.Pending, &b.Failed)
			b.Priority = domain.Priority(priority)
			return b, err
		})
		if err != nil {
			return fmt.Errorf("priority breakdown: %w", err)
		}

		stats.KindBreakdown, err = kindBreakdown(ctx, tx, time.Time{})
		return err
	})
	if err != nil {
		return nil, err
	}

	stats.Performance.Finalize()
	return stats, nil
}

// Dashboard backs GET /dashboard.
func (r *StatsRepository) Dashboard(ctx context.Context, now time.Time) (*domain.Dashboard, error) {
	d := &domain.Dashboard{Timestamp: now}

	err := r.db.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ra := &d.RecentActivity
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FILTER (WHERE created_at >= $1),
			       COUNT(*) FILTER (WHERE created_at >= $2),
			       COUNT(*) FILTER (WHERE created_at >= $3)
			FROM gateway_sync_queue
			WHERE created_at >= $3`,
			now.Add(-time.Hour), now.Add(-24*time.Hour), now.Add(-7*24*time.Hour),
		).Scan(&ra.LastHour, &ra.Last24Hours, &ra.Last7Days)
		if err != nil {
			return fmt.Errorf("recent activity: %w", err)
		}

		qs := &d.QueueStatus
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FILTER (WHERE status = 'PENDING'),
			       COUNT(*) FILTER (WHERE status = 'PROCESSING'),
			       COUNT(*) FILTER (WHERE status = 'FAILED'
			                          AND attempts < max_attempts
			                          AND next_retry_at <= $1)
			FROM gateway_sync_queue
			WHERE status IN ('PENDING', 'PROCESSING', 'FAILED')`, now,
		).Scan(&qs.Pending, &qs.Processing, &qs.FailedReadyForRetry)
		if err != nil {
			return fmt.Errorf("queue status: %w", err)
		}

		if d.Performance, err = performanceSince(ctx, tx, now.Add(-24*time.Hour)); err != nil {
			return err
		}

		if d.KindStats, err = kindBreakdown(ctx, tx, now.Add(-24*time.Hour)); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT error_message, sync_type, COUNT(*)
			FROM gateway_sync_queue
			WHERE status = 'FAILED'
			  AND error_message IS NOT NULL
			  AND updated_at >= $1
			GROUP BY error_message, sync_type
			ORDER BY COUNT(*) DESC
			LIMIT 5`, now.Add(-time.Hour))
		if err != nil {
			return fmt.Errorf("recent errors: %w", err)
		}
		d.RecentErrors, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RecentError, error) {
			var (
				e    domain.RecentError
				kind string
			)
			err := row.Scan(&e.ErrorMessage, &kind, &e.Count)
			e.Kind = domain.SyncKind(kind)
			return e, err
		})
		if err != nil {
			return fmt.Errorf("recent errors: %w", err)
		}

		w := &d.Webhooks
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE signature_valid),
			       COUNT(*) FILTER (WHERE processed)
			FROM gateway_webhook_logs
			WHERE created_at >= $1`, now.Add(-24*time.Hour),
		).Scan(&w.Total, &w.ValidSignatures, &w.Processed)
		if err != nil {
			return fmt.Errorf("webhook activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.Performance.Finalize()
	d.SystemHealth = domain.HealthFor(d.QueueStatus.Processing)
	return d, nil
}

// CountByState feeds the queue depth gauge.
func (r *StatsRepository) CountByState(ctx context.Context) (map[domain.SyncState]int64, error) {
	rows, err := r.db.GetDB().Query(ctx, `SELECT status, COUNT(*) FROM gateway_sync_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()

	counts := map[domain.SyncState]int64{
		domain.SyncStatePending:    0,
		domain.SyncStateProcessing: 0,
		domain.SyncStateCompleted:  0,
		domain.SyncStateFailed:     0,
	}
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("count by state: %w", err)
		}
		counts[domain.SyncState(state)] = n
	}
	return counts, rows.Err()
}

func performanceSince(ctx context.Context, tx pgx.Tx, since time.Time) (domain.SyncPerformance, error) {
	var p domain.SyncPerformance
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       COUNT(*) FILTER (WHERE response_time_ms < $2),
		       COALESCE(AVG(response_time_ms), 0)::float8,
		       COALESCE(MAX(response_time_ms), 0)
		FROM gateway_sync_logs
		WHERE created_at >= $1`, since, domain.SLAResponseTimeMS,
	).Scan(&p.TotalOperations, &p.SuccessfulOperations, &p.UnderSLA, &p.AvgResponseTimeMS, &p.MaxResponseTimeMS)
	if err != nil {
		return p, fmt.Errorf("sync performance: %w", err)
	}
	return p, nil
}

// kindBreakdown groups tasks created since the given time; a zero time
// covers the whole table.
func kindBreakdown(ctx context.Context, tx pgx.Tx, since time.Time) ([]domain.KindBreakdown, error) {
	rows, err := tx.Query(ctx, `
		SELECT sync_type, COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'PENDING'),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM gateway_sync_queue
		WHERE created_at >= $1
		GROUP BY sync_type
		ORDER BY sync_type`, since)
	if err != nil {
		return nil, fmt.Errorf("kind breakdown: %w", err)
	}
	breakdown, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.KindBreakdown, error) {
		var (
			b    domain.KindBreakdown
			kind string
		)
		err := row.Scan(&kind, &b.Count, &b.Pending, &b.Completed, &b.Failed)
		b.Kind = domain.SyncKind(kind)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("kind breakdown: %w", err)
	}
	return breakdown, nil
}
