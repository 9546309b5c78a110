// Package storage owns the embedded SQLite finding store: locating the
// database file, opening it with the pragmas the concurrency model needs,
// and running multi-statement transactions with retry under contention.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	auditerrors "srcaudit/internal/errors"
	"srcaudit/internal/logging"
)

// StoreFileName is the well-known database file name searched for in the
// working directory and its ancestors.
const StoreFileName = "srcaudit.sqlite"

// Options tune lock handling. Zero values fall back to defaults.
type Options struct {
	// BusyTimeoutMs is how long a statement blocks on the file lock
	// before surfacing SQLITE_BUSY.
	BusyTimeoutMs int
	// MaxAttempts bounds whole-transaction retries under contention.
	MaxAttempts int
	// BackoffBaseMs is the first retry delay, doubling per attempt.
	BackoffBaseMs int
}

func (o Options) withDefaults() Options {
	if o.BusyTimeoutMs <= 0 {
		o.BusyTimeoutMs = 5000
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 6
	}
	if o.BackoffBaseMs <= 0 {
		o.BackoffBaseMs = 50
	}
	return o
}

// DB represents a database connection with transaction helpers. One DB
// value is injected into every component that needs the store; there is no
// ambient global handle.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	opts   Options
	dbPath string
}

// Locate searches dir and its parent directories for the well-known
// database file and returns its path.
func Locate(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for d := resolved; ; d = filepath.Dir(d) {
		candidate := filepath.Join(d, StoreFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		if d == filepath.Dir(d) {
			break
		}
	}
	return "", auditerrors.Newf(auditerrors.StoreMissing, nil,
		"could not find %s in %s or its parent directories", StoreFileName, resolved)
}

// Open opens an existing database file. The file must already exist;
// databases are created explicitly via Create.
func Open(dbPath string, opts Options, logger *logging.Logger) (*DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, auditerrors.Newf(auditerrors.StoreMissing, err, "no database at %s", dbPath)
	}
	return open(dbPath, opts, logger)
}

// Create creates (or opens) the database file at dbPath and installs the
// schema if it is missing.
func Create(dbPath string, opts Options, logger *logging.Logger) (*DB, error) {
	db, err := open(dbPath, opts, logger)
	if err != nil {
		return nil, err
	}
	if err := db.initializeSchema(); err != nil {
		db.conn.Close() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func open(dbPath string, opts Options, logger *logging.Logger) (*DB, error) {
	opts = opts.withDefaults()

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pragmas for concurrent reader/writer access. WAL lets a
	// parallel build commit from many processes; the busy timeout blocks
	// briefly on the file lock before surfacing to the retry loop.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeoutMs),
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck // Best effort cleanup
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return &DB{
		conn:   conn,
		logger: logger,
		opts:   opts,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.dbPath
}

// Dir returns the directory containing the database file
func (db *DB) Dir() string {
	return filepath.Dir(db.dbPath)
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// IsBusy reports whether err is a transient lock-contention condition
// (SQLITE_BUSY or SQLITE_LOCKED, including their extended codes) that is
// expected to resolve if retried after a delay.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
