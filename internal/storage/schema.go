package storage

import (
	"database/sql"
	"fmt"

	"srcaudit/internal/logging"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database. Safe to run on
// an already-initialized database.
//
// files rows are identity snapshots: multiple rows may exist per path over
// time, and the highest id for a path is authoritative. reports rows are
// append-only and become unreachable once their files row is shadowed.
func (db *DB) initializeSchema() error {
	return db.RunInTx(func(tx *sql.Tx) (TxOutcome, error) {
		if _, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER NOT NULL
			)
		`); err != nil {
			return TxError, fmt.Errorf("failed to create schema_version table: %w", err)
		}

		if _, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS files (
				id INTEGER PRIMARY KEY,
				path TEXT NOT NULL,
				mtime INTEGER NOT NULL,
				size INTEGER NOT NULL
			)
		`); err != nil {
			return TxError, fmt.Errorf("failed to create files table: %w", err)
		}
		if _, err := tx.Exec(
			`CREATE INDEX IF NOT EXISTS files_path ON files (path)`,
		); err != nil {
			return TxError, fmt.Errorf("failed to create files index: %w", err)
		}

		if _, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS reports (
				file INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				line INTEGER NOT NULL,
				column INTEGER NOT NULL,
				tool TEXT NOT NULL,
				message TEXT NOT NULL
			)
		`); err != nil {
			return TxError, fmt.Errorf("failed to create reports table: %w", err)
		}
		if _, err := tx.Exec(
			`CREATE INDEX IF NOT EXISTS reports_file ON reports (file)`,
		); err != nil {
			return TxError, fmt.Errorf("failed to create reports index: %w", err)
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return TxError, err
		}

		db.logger.Info("Database schema initialized", logging.Fields{
			"path":    db.dbPath,
			"version": currentSchemaVersion,
		})

		return TxCommit, nil
	})
}

// SchemaVersion returns the stored schema version, or 0 for a database
// without one.
func (db *DB) SchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}
