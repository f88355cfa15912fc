package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBExecutor implements the DBPort interface for PostgreSQL
type DBExecutor struct {
	pool *pgxpool.Pool
}

// NewDBExecutor creates a new PostgreSQL database executor
func NewDBExecutor(pool *pgxpool.Pool) *DBExecutor {
	return &DBExecutor{pool: pool}
}

// GetDB returns the underlying database connection pool
func (db *DBExecutor) GetDB() *pgxpool.Pool {
	return db.pool
}

// WithTransaction runs fn inside a read-write transaction, rolling back when
// fn errors or panics.
func (db *DBExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	return runTx(ctx, tx, fn)
}

// WithReadOnlyTransaction gives fn a consistent snapshot across several
// queries, as the stats aggregates need.
func (db *DBExecutor) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: pgx.ReadOnly,
		IsoLevel:   pgx.RepeatableRead,
	})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	return runTx(ctx, tx, fn)
}

func runTx(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context, tx pgx.Tx) error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
