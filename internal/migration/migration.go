package migration

import (
	"context"
	"fmt"

	"fieldtrial/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations for the SQL document stores
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. The dialect is taken from
// the driver the handle was opened with.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	d, err := dialectFor(db.DriverName())
	if err != nil {
		return err
	}

	if err := exec(ctx, db, d.documentsTable); err != nil {
		return errors.Wrap(err, "failed to create documents table")
	}

	for _, stmt := range d.indexes {
		if err := exec(ctx, db, stmt); err != nil {
			return errors.Wrap(err, "failed to create indexes")
		}
	}

	if err := exec(ctx, db, d.versionsTable); err != nil {
		return errors.Wrap(err, "failed to create schema_versions table")
	}

	if err := r.recordVersion(ctx, db, d); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}

	return nil
}

type dialect struct {
	documentsTable string
	indexes        []string
	versionsTable  string
	insertVersion  string
}

var dialects = map[string]dialect{
	"postgres": {
		documentsTable: `
			CREATE TABLE IF NOT EXISTS documents (
				collection VARCHAR(100) NOT NULL,
				id VARCHAR(100) NOT NULL,
				payload JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (collection, id)
			)
		`,
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_documents_payload ON documents USING GIN (payload jsonb_path_ops)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_parent_study ON documents ((payload->>'parent_study_id')) WHERE collection = 'plots'`,
		},
		versionsTable: `
			CREATE TABLE IF NOT EXISTS schema_versions (
				version VARCHAR(20) PRIMARY KEY,
				applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)
		`,
		insertVersion: `INSERT INTO schema_versions (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`,
	},
	"sqlite": {
		documentsTable: `
			CREATE TABLE IF NOT EXISTS documents (
				collection TEXT NOT NULL,
				id TEXT NOT NULL,
				payload TEXT NOT NULL,
				created_at TEXT DEFAULT CURRENT_TIMESTAMP,
				updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (collection, id)
			)
		`,
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_documents_parent_study ON documents (collection, json_extract(payload, '$.parent_study_id'))`,
		},
		versionsTable: `
			CREATE TABLE IF NOT EXISTS schema_versions (
				version TEXT PRIMARY KEY,
				applied_at TEXT DEFAULT CURRENT_TIMESTAMP
			)
		`,
		insertVersion: `INSERT INTO schema_versions (version) VALUES (?) ON CONFLICT (version) DO NOTHING`,
	},
}

func dialectFor(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, errors.ConfigInvalid(fmt.Sprintf("no migrations for driver %q", driver))
	}
	return d, nil
}

func exec(ctx context.Context, db *sqlx.DB, stmt string) error {
	_, err := db.ExecContext(ctx, stmt)
	return err
}

func (r *MigrationRunner) recordVersion(ctx context.Context, db *sqlx.DB, d dialect) error {
	_, err := db.ExecContext(ctx, d.insertVersion, r.version)
	return err
}

// AppliedVersions lists recorded schema versions
func AppliedVersions(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var versions []string
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_versions ORDER BY version`); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	return versions, nil
}
