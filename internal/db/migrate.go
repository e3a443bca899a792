// Package db applies the embedded SQL migrations for the users directory and
// the postgres client-state backend.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Pending lists migration versions that have not been recorded yet, in
// apply order.
func Pending(ctx context.Context, database *sql.DB) ([]string, error) {
	if err := ensureLedger(ctx, database); err != nil {
		return nil, err
	}

	all, err := versions(migrationFiles)
	if err != nil {
		return nil, err
	}

	pending := all[:0]
	for _, version := range all {
		applied, err := isApplied(ctx, database, version)
		if err != nil {
			return nil, err
		}
		if !applied {
			pending = append(pending, version)
		}
	}
	return pending, nil
}

// RunMigrations applies every pending migration, each in its own
// transaction together with its ledger row.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	pending, err := Pending(ctx, database)
	if err != nil {
		return err
	}

	for _, version := range pending {
		script, err := migrationFiles.ReadFile("migrations/" + version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := apply(ctx, database, version, string(script)); err != nil {
			return err
		}
	}

	return nil
}

func ensureLedger(ctx context.Context, database *sql.DB) error {
	if _, err := database.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func versions(files fs.ReadDirFS) ([]string, error) {
	entries, err := files.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migration files: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func isApplied(ctx context.Context, database *sql.DB, version string) (bool, error) {
	var exists bool
	err := database.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}

func apply(ctx context.Context, database *sql.DB, version, script string) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
