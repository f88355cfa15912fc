package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var poolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "gateway_sync_db_pool_connections",
	Help: "Database pool connections by state",
}, []string{"state"})

// PostgreSQLConfig contains configuration for PostgreSQL connection
type PostgreSQLConfig struct {
	// Connection string, either a URL or key=value DSN
	DatabaseURL string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Query timeout tiers
	SimpleQueryTimeout  time.Duration // single row reads and writes
	ComplexQueryTimeout time.Duration // claims and sweeps
	ReportQueryTimeout  time.Duration // stats and dashboard aggregates
}

// DefaultPostgreSQLConfig returns default configuration
func DefaultPostgreSQLConfig(databaseURL string) *PostgreSQLConfig {
	return &PostgreSQLConfig{
		DatabaseURL:         databaseURL,
		MaxConns:            25,
		MinConns:            5,
		MaxConnLifetime:     time.Hour,
		MaxConnIdleTime:     30 * time.Minute,
		SimpleQueryTimeout:  2 * time.Second,
		ComplexQueryTimeout: 5 * time.Second,
		ReportQueryTimeout:  30 * time.Second,
	}
}

// PostgreSQLAdapter owns the connection pool
type PostgreSQLAdapter struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	config *PostgreSQLConfig
}

// NewPostgreSQLAdapter creates the pool and verifies connectivity
func NewPostgreSQLAdapter(ctx context.Context, cfg *PostgreSQLConfig, logger *zap.Logger) (*PostgreSQLAdapter, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("PostgreSQL adapter initialized",
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.Uint16("port", poolConfig.ConnConfig.Port),
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &PostgreSQLAdapter{
		pool:   pool,
		logger: logger,
		config: cfg,
	}, nil
}

// Pool returns the underlying connection pool
func (a *PostgreSQLAdapter) Pool() *pgxpool.Pool {
	return a.pool
}

// Close closes the database connection pool
func (a *PostgreSQLAdapter) Close() {
	a.logger.Info("Closing PostgreSQL connection pool")
	a.pool.Close()
}

// Ping satisfies observability.Pinger.
func (a *PostgreSQLAdapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// StartPoolMonitoring publishes pool utilization until ctx is cancelled,
// warning at 80% and erroring at 95%.
func (a *PostgreSQLAdapter) StartPoolMonitoring(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.reportPool()
			}
		}
	}()
}

func (a *PostgreSQLAdapter) reportPool() {
	stat := a.pool.Stat()
	total := stat.MaxConns()
	acquired := stat.AcquiredConns()
	idle := stat.IdleConns()

	poolConnections.WithLabelValues("acquired").Set(float64(acquired))
	poolConnections.WithLabelValues("idle").Set(float64(idle))
	poolConnections.WithLabelValues("max").Set(float64(total))

	if total == 0 {
		return
	}
	utilization := float64(acquired) / float64(total) * 100

	switch {
	case utilization > 95:
		a.logger.Error("Database connection pool near exhaustion",
			zap.Float64("utilization_percent", utilization),
			zap.Int32("acquired", acquired),
			zap.Int32("total", total),
		)
	case utilization > 80:
		a.logger.Warn("Database connection pool highly utilized",
			zap.Float64("utilization_percent", utilization),
			zap.Int32("acquired", acquired),
			zap.Int32("total", total),
		)
	}
}

// SimpleQueryContext bounds single row operations.
func (a *PostgreSQLAdapter) SimpleQueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.config.SimpleQueryTimeout)
}

// ComplexQueryContext bounds claims and sweeps.
func (a *PostgreSQLAdapter) ComplexQueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.config.ComplexQueryTimeout)
}

// ReportQueryContext bounds stats and dashboard aggregates.
func (a *PostgreSQLAdapter) ReportQueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.config.ReportQueryTimeout)
}
