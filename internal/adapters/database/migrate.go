package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/postgres"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction, in file name order.
// It returns the versions it applied.
func Migrate(ctx context.Context, client *postgres.Client, logger zerolog.Logger) ([]string, error) {
	if _, err := client.DB().ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	db := goqu.New("postgres", client.DB())
	var applied []string
	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")

		var found string
		ok, err := db.From("schema_migrations").Select("version").
			Where(goqu.Ex{"version": version}).ScanValContext(ctx, &found)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration state: %w", err)
		}
		if ok {
			continue
		}

		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("failed to read %s: %w", name, err)
		}

		err = client.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("migration %s failed: %w", version, err)
			}
			query, args, err := goqu.Dialect("postgres").Insert("schema_migrations").
				Rows(goqu.Record{"version": version}).ToSQL()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, query, args...)
			return err
		})
		if err != nil {
			return applied, err
		}

		logger.Info().Str("version", version).Msg("applied migration")
		applied = append(applied, version)
	}

	return applied, nil
}
