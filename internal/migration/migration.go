package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"sentinel/internal"
	"sentinel/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// Migration is one forward-only schema step. The SQL must run unchanged on
// both postgres and sqlite.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Checksum fingerprints the statement so edits to applied migrations are caught
func (m Migration) Checksum() string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(m.SQL)))
}

const appliedLayout = "2006-01-02 15:04:05"

// reportMigrations create the archive of generated quality reports
var reportMigrations = []Migration{
	{
		Version:     "001",
		Description: "quality report archive",
		SQL: `
		CREATE TABLE IF NOT EXISTS quality_reports (
			id TEXT PRIMARY KEY,
			snapshot_id TEXT NOT NULL,
			source TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			root_causes INTEGER NOT NULL DEFAULT 0,
			insights INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL
		)`,
	},
	{
		Version:     "002",
		Description: "report listing index",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_quality_reports_generated_at ON quality_reports (generated_at DESC)`,
	},
}

// MigrationRunner applies pending migrations and records them in schema_migrations
type MigrationRunner struct {
	migrations []Migration
	logger     *zap.Logger
}

// NewRunner creates a runner for the report archive schema
func NewRunner(logger *zap.Logger) *MigrationRunner {
	return &MigrationRunner{
		migrations: reportMigrations,
		logger:     internal.OrNop(logger).Named("migration"),
	}
}

// Version returns the newest migration the runner knows
func (r *MigrationRunner) Version() string {
	if len(r.migrations) == 0 {
		return ""
	}
	return r.migrations[len(r.migrations)-1].Version
}

// Run applies every migration not yet recorded, each in its own transaction.
// An applied migration whose SQL changed since is an error.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return errors.DatabaseError("failed to create migrations table", err)
	}

	applied, err := r.Applied(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range r.migrations {
		if sum, ok := applied[m.Version]; ok {
			if sum != m.Checksum() {
				return errors.New(errors.CodeDatabaseError,
					fmt.Sprintf("migration %s changed after it was applied", m.Version))
			}
			continue
		}
		if err := r.apply(ctx, db, m); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to apply migration %s", m.Version), err)
		}
		r.logger.Info("migration applied",
			zap.String("version", m.Version),
			zap.String("description", m.Description))
	}
	return nil
}

// Applied maps each recorded version to its checksum
func (r *MigrationRunner) Applied(ctx context.Context, db *sqlx.DB) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &rows, `SELECT version, checksum FROM schema_migrations`); err != nil &&
		!stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.DatabaseError("failed to read applied migrations", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Version] = row.Checksum
	}
	return out, nil
}

func (r *MigrationRunner) apply(ctx context.Context, db *sqlx.DB, m Migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)`),
		m.Version, m.Checksum(), time.Now().UTC().Format(appliedLayout)); err != nil {
		return err
	}
	return tx.Commit()
}
