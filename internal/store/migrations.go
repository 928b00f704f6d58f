package store

import (
	"database/sql"
	"fmt"
	"strings"

	"scribe/internal/logging"
)

// Schema versions:
// v1: reports, sections, tasks tables
// v2: snippets table with embedding + content_hash for deduplication
// v3: sections gained sources column (JSON array)
const CurrentSchemaVersion = 3

// migrate brings the database schema up to CurrentSchemaVersion.
// Migrations are idempotent: re-running against a current database is a no-op.
func (s *LocalStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, CurrentSchemaVersion)
	}
	if version == CurrentSchemaVersion {
		return nil
	}

	logging.Store("Migrating schema: v%d -> v%d", version, CurrentSchemaVersion)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for v := version + 1; v <= CurrentSchemaVersion; v++ {
		if err := applyMigration(tx, v); err != nil {
			return fmt.Errorf("migration to v%d failed: %w", v, err)
		}
		logging.StoreDebug("Applied migration v%d", v)
	}

	if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// schemaVersion reads the current version, 0 for a fresh database.
func (s *LocalStore) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func applyMigration(tx *sql.Tx, version int) error {
	switch version {
	case 1:
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS reports (
				id TEXT PRIMARY KEY,
				topic TEXT NOT NULL,
				title TEXT NOT NULL,
				summary TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				model TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS sections (
				report_id TEXT NOT NULL,
				idx INTEGER NOT NULL,
				heading TEXT NOT NULL,
				brief TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				worker_id TEXT NOT NULL DEFAULT '',
				failed INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (report_id, idx)
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				report_id TEXT NOT NULL,
				section_idx INTEGER NOT NULL,
				worker_id TEXT NOT NULL DEFAULT '',
				state TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				queued_ms INTEGER NOT NULL DEFAULT 0,
				started_at INTEGER,
				finished_at INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_report ON tasks(report_id)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
	case 2:
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS snippets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source TEXT NOT NULL,
				content TEXT NOT NULL,
				content_hash TEXT NOT NULL UNIQUE,
				embedding BLOB,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_snippets_source ON snippets(source)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
	case 3:
		if _, err := tx.Exec(`ALTER TABLE sections ADD COLUMN sources TEXT NOT NULL DEFAULT '[]'`); err != nil {
			// Column may already exist when migrating a database created
			// between releases; tolerate the duplicate-column error.
			if !isDuplicateColumnErr(err) {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown schema version %d", version)
	}
	return nil
}

func isDuplicateColumnErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}
