// Package report reads the finding store back out. For every path the
// store knows, it re-resolves the file's current on-disk identity and
// yields only the findings attached to that exact identity, so stale
// results from superseded analysis runs never surface.
package report

import (
	"database/sql"
	"fmt"

	"srcaudit/internal/identity"
	"srcaudit/internal/logging"
	"srcaudit/internal/storage"
)

// Callback processes one finding at a time. Enumeration continues for as
// long as it returns true; returning false stops the report promptly.
type Callback func(path string, line, column uint32, tool, message string) bool

// ForEach streams the current findings to cb in deterministic order:
// paths sorted, findings in insertion order. A path that cannot be found
// on disk, or whose content changed since the last analysis, is skipped
// with a diagnostic and downgrades clean to false without aborting the
// rest of the report. Reads are not transactional as a unit; individual
// statements retry on lock contention.
func ForEach(db *storage.DB, logger *logging.Logger, cb Callback) (clean bool, err error) {
	paths, err := knownPaths(db)
	if err != nil {
		return false, err
	}

	clean = true
	for _, path := range paths {
		fi := identity.Identify(path)
		if !fi.Valid() {
			logger.Warn("could not find file on disk", logging.Fields{"path": path})
			clean = false
			continue
		}

		id, found, err := currentRow(db, fi)
		if err != nil {
			return false, err
		}
		if !found {
			logger.Warn("no report for current file contents", logging.Fields{"path": path})
			clean = false
			continue
		}

		done, err := streamFindings(db, path, id, cb)
		if err != nil {
			return false, err
		}
		if done {
			return clean, nil
		}
	}
	return clean, nil
}

// knownPaths returns every distinct canonical path in the store, sorted
// for deterministic output.
func knownPaths(db *storage.DB) ([]string, error) {
	var paths []string
	err := db.RetryBusy(func() error {
		paths = paths[:0]
		rows, err := db.Query(`SELECT DISTINCT path FROM files ORDER BY path`)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck // Best effort cleanup
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			paths = append(paths, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list known files: %w", err)
	}
	return paths, nil
}

// currentRow finds the files row matching the live on-disk identity.
// Multiple rows with an identical (path, mtime, size) tuple should not
// normally occur but are not assumed impossible; the highest id wins.
func currentRow(db *storage.DB, fi identity.FileIdentity) (id int64, found bool, err error) {
	err = db.RetryBusy(func() error {
		row := db.QueryRow(`
			SELECT id FROM files
			WHERE path = ? AND mtime = ? AND size = ?
			ORDER BY id DESC LIMIT 1
		`, fi.Path, fi.Mtime, fi.Size)
		scanErr := row.Scan(&id)
		if scanErr == sql.ErrNoRows {
			found = false
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s: %w", fi.Path, err)
	}
	return id, found, nil
}

// streamFindings yields the findings for one files row in stable
// insertion order. done is true when the callback asked to stop.
func streamFindings(db *storage.DB, path string, fileID int64, cb Callback) (done bool, err error) {
	err = db.RetryBusy(func() error {
		rows, err := db.Query(`
			SELECT DISTINCT line, column, tool, message
			FROM reports WHERE file = ? ORDER BY rowid
		`, fileID)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck // Best effort cleanup

		for rows.Next() {
			var line, column uint32
			var tool, message string
			if err := rows.Scan(&line, &column, &tool, &message); err != nil {
				return err
			}
			if !cb(path, line, column, tool, message) {
				done = true
				return nil
			}
		}
		return rows.Err()
	})
	if err != nil {
		return false, fmt.Errorf("failed to read findings for %s: %w", path, err)
	}
	return done, nil
}
