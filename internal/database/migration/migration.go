package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Dialect selects the SQL flavour of the schema.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = map[Dialect][]migrationStep{
	Postgres: {
		{
			Name: "create_table_certificates",
			SQL: `CREATE TABLE IF NOT EXISTS certificates (
  seq        BIGSERIAL   PRIMARY KEY,
  id         TEXT        NOT NULL UNIQUE,
  name       TEXT        NOT NULL,
  digest     TEXT        NOT NULL,
  qr_code    TEXT        NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		},
		{
			Name: "create_index_certificates_digest",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_certificates_digest ON certificates (digest);`,
		},
	},
	SQLite: {
		{
			Name: "create_table_certificates",
			SQL: `CREATE TABLE IF NOT EXISTS certificates (
  seq        INTEGER PRIMARY KEY AUTOINCREMENT,
  id         TEXT    NOT NULL UNIQUE,
  name       TEXT    NOT NULL,
  digest     TEXT    NOT NULL,
  qr_code    TEXT    NOT NULL DEFAULT '',
  created_at TEXT    NOT NULL
);`,
		},
		{
			Name: "create_index_certificates_digest",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_certificates_digest ON certificates (digest);`,
		},
	},
}

var sentinel = map[Dialect]string{
	Postgres: "SELECT to_regclass('public.certificates') IS NOT NULL",
	SQLite:   "SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'certificates'",
}

// EnsureMigrated checks if the 'certificates' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "database", "dialect", string(dialect))
	start := time.Now()

	query, ok := sentinel[dialect]
	if !ok {
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	logger.Info("db_migration_check", "status", "starting")

	var exists bool
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		logger.Error("db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("failed to check sentinel table: %v", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logger.Info("db_migration_skip",
			"status", "success",
			"detail", "schema already exists, skipping migration",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	logger.Info("db_migration_start", "status", "in_progress")

	for _, step := range steps[dialect] {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logger.Error("db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logger.Info("db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	logger.Info("db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
