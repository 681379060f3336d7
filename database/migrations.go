package database

import (
	"database/sql"
	"fmt"
)

// migration is one versioned schema change.
type migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

// MigrationRunner applies pending Postgres migrations in order.
type MigrationRunner struct {
	db         *sql.DB
	migrations []migration
}

func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{
		db: db,
		migrations: []migration{
			{Version: 1, Name: "initial_schema", Apply: migrateV001},
		},
	}
}

// Run creates the schema_migrations table and applies every migration that
// has not been recorded yet, each inside its own transaction.
func (r *MigrationRunner) Run() error {
	if _, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range r.migrations {
		applied, err := r.isApplied(m.Version)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		if err := r.apply(m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

func (r *MigrationRunner) isApplied(version int) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MigrationRunner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(tx); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// migrateV001 creates the tables the core reads and writes. Sites and funnels
// are owned by other services but live in the same database.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sites (
			id          BIGSERIAL PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			name        TEXT NOT NULL,
			domain      TEXT NOT NULL UNIQUE,
			tracking_id UUID NOT NULL UNIQUE,
			settings    JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id               UUID PRIMARY KEY,
			site_id          BIGINT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
			user_identifier  TEXT,
			device_type      TEXT NOT NULL DEFAULT '',
			browser          TEXT NOT NULL DEFAULT '',
			os               TEXT NOT NULL DEFAULT '',
			location         JSONB,
			viewport         JSONB NOT NULL DEFAULT '{}',
			tags             JSONB NOT NULL DEFAULT '{}',
			started_at       TIMESTAMPTZ NOT NULL,
			ended_at         TIMESTAMPTZ,
			last_activity_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS recordings (
			session_id      UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			recording_id    TEXT NOT NULL UNIQUE,
			duration        BIGINT NOT NULL DEFAULT 0,
			event_count     INTEGER NOT NULL DEFAULT 0,
			recording_data  JSONB NOT NULL DEFAULT '[]',
			has_errors      BOOLEAN NOT NULL DEFAULT false,
			has_rage_clicks BOOLEAN NOT NULL DEFAULT false,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS heatmap_data (
			id               BIGSERIAL PRIMARY KEY,
			site_id          BIGINT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
			page_url         TEXT NOT NULL,
			heatmap_type     TEXT NOT NULL,
			device_type      TEXT NOT NULL,
			date_range_start DATE NOT NULL,
			date_range_end   DATE NOT NULL,
			data             JSONB NOT NULL,
			max_value        INTEGER NOT NULL DEFAULT 0,
			session_count    INTEGER NOT NULL DEFAULT 0,
			total_events     INTEGER NOT NULL DEFAULT 0,
			generated_at     TIMESTAMPTZ NOT NULL,
			UNIQUE (site_id, page_url, heatmap_type, device_type, date_range_start, date_range_end)
		)`,

		`CREATE TABLE IF NOT EXISTS funnels (
			id         BIGSERIAL PRIMARY KEY,
			site_id    BIGINT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			steps      JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_site_started ON sessions (site_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sites_owner ON sites (owner_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}
