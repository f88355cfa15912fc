// Package migrations embeds the goose SQL migrations for the engine's schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

const dialect = "postgres"

// FS holds every *.sql migration, applied in filename order.
//
//go:embed *.sql
var FS embed.FS

// Run executes a goose command against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB) error {
	return Run(ctx, db, "up")
}
