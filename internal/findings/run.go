// Package findings implements the per-run finding store: one Run buffers
// the findings of a single analysis pass over a translation unit and lands
// them in the database in one transaction. Many runs from a parallel build
// may commit concurrently against the same store; each commit is
// independent and self-consistent, and the shared invariant — highest
// files row id per path wins — is monotonic under row-id allocation.
package findings

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	auditerrors "srcaudit/internal/errors"
	"srcaudit/internal/identity"
	"srcaudit/internal/logging"
	"srcaudit/internal/storage"
)

// fileHandle is an in-memory candidate for a files row. It stays pending
// (rowID zero) until Commit persists it.
type fileHandle struct {
	identity identity.FileIdentity
	rowID    int64
}

// buffered is one finding accumulated before commit.
type buffered struct {
	handle  *fileHandle
	line    uint32
	column  uint32
	tool    string
	message string
}

// Run accumulates the findings of one analysis invocation. A Run is a
// single-shot object: after Commit returns (success or failure) its state
// is consumed and it must not be reused. A Run is not safe for concurrent
// use; concurrency happens across processes, not within a run.
type Run struct {
	db     *storage.DB
	logger *logging.Logger
	id     string

	// handles memoizes identity resolution, keyed by both the raw path
	// spelling and the canonical path so aliases converge on one handle.
	handles  map[string]*fileHandle
	pending  []*fileHandle
	touched  []string
	findings []buffered

	committed bool
	errMsg    string
}

// NewRun creates a run against the given store.
func NewRun(db *storage.DB, logger *logging.Logger) *Run {
	return &Run{
		db:      db,
		logger:  logger,
		id:      uuid.NewString(),
		handles: make(map[string]*fileHandle),
	}
}

// ID returns the run identifier used in logs and the export manifest.
func (r *Run) ID() string {
	return r.id
}

// ErrorMessage returns the most recent per-path diagnostic, for callers
// that only see a boolean failure signal.
func (r *Run) ErrorMessage() string {
	return r.errMsg
}

// resolve maps a path to its in-run file handle, creating a pending handle
// on first sight. Two path spellings denoting the same file resolve to the
// same handle; only one files row is ever produced for them. Returns nil
// if the path cannot be identified on disk.
func (r *Run) resolve(path string) *fileHandle {
	if h, ok := r.handles[path]; ok {
		return h
	}
	fi := identity.Identify(path)
	if !fi.Valid() {
		r.errMsg = "could not find file on disk: " + path
		return nil
	}
	h := r.resolveIdentified(fi)
	r.handles[path] = h
	return h
}

// resolveIdentified is resolve for an already-computed identity, keyed by
// canonical path only.
func (r *Run) resolveIdentified(fi identity.FileIdentity) *fileHandle {
	if h, ok := r.handles[fi.Path]; ok {
		return h
	}
	h := &fileHandle{identity: fi}
	r.handles[fi.Path] = h
	r.pending = append(r.pending, h)
	return h
}

// Record buffers one finding against the file at path. Failure means the
// path could not be identified; the caller should treat it as fatal for
// the current run only.
func (r *Run) Record(path string, line, column uint32, tool, message string) error {
	if r.committed {
		return auditerrors.New(auditerrors.InternalError, "run already committed", nil)
	}
	h := r.resolve(path)
	if h == nil {
		return auditerrors.Newf(auditerrors.FileNotFound, nil, "could not find file on disk: %s", path)
	}
	r.findings = append(r.findings, buffered{
		handle:  h,
		line:    line,
		column:  column,
		tool:    tool,
		message: message,
	})
	return nil
}

// MarkTouched records that path is an input of the current run. Resolution
// is deferred to Commit: touching must happen even for files that produce
// zero findings, so that their stale results are shadowed, but resolving
// here would stat every file twice.
func (r *Run) MarkTouched(path string) {
	r.touched = append(r.touched, path)
}

// Commit lands the run in one transaction:
//
//  1. every touched path that already has a files row gets a fresh
//     identity row, shadowing prior findings even if the content is
//     unchanged;
//  2. one files row is inserted per distinct canonical pending path and
//     the assigned row id is captured onto the handle;
//  3. one reports row is inserted per buffered finding.
//
// The step order is required: a finding must never reference a row that a
// later shadowing step would supersede. Transient lock contention retries
// the whole transaction from a clean snapshot; the rollback also reclaims
// any row ids captured by the failed attempt.
func (r *Run) Commit() error {
	if r.committed {
		return auditerrors.New(auditerrors.InternalError, "run already committed", nil)
	}
	r.committed = true

	err := r.db.RunInTx(func(tx *sql.Tx) (storage.TxOutcome, error) {
		// A retried attempt starts over: ids from a rolled-back
		// attempt are no longer valid.
		for _, h := range r.pending {
			h.rowID = 0
		}

		if outcome, err := r.shadowTouched(tx); outcome != storage.TxCommit {
			return outcome, err
		}
		if err := r.insertPending(tx); err != nil {
			return storage.TxError, err
		}
		if err := r.insertFindings(tx); err != nil {
			return storage.TxError, err
		}
		return storage.TxCommit, nil
	})

	if err != nil {
		r.logger.Error("commit failed", logging.Fields{
			"run":   r.id,
			"error": err.Error(),
		})
		return err
	}

	r.logger.Debug("run committed", logging.Fields{
		"run":      r.id,
		"files":    len(r.pending),
		"findings": len(r.findings),
	})
	return nil
}

// shadowTouched implements commit step 1.
func (r *Run) shadowTouched(tx *sql.Tx) (storage.TxOutcome, error) {
	stmt, err := tx.Prepare(`SELECT id FROM files WHERE path = ? ORDER BY id DESC LIMIT 1`)
	if err != nil {
		return storage.TxError, fmt.Errorf("failed to prepare shadow lookup: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Best effort cleanup

	for _, path := range r.touched {
		fi := identity.Identify(path)
		if !fi.Valid() {
			r.errMsg = "could not find file on disk: " + path
			return storage.TxRollback, auditerrors.Newf(auditerrors.FileNotFound, nil,
				"could not find file on disk: %s", path)
		}

		var id int64
		err := stmt.QueryRow(fi.Path).Scan(&id)
		if err == sql.ErrNoRows {
			// File is not in the database. Nothing to shadow.
			continue
		}
		if err != nil {
			return storage.TxError, fmt.Errorf("failed to look up %s: %w", fi.Path, err)
		}

		// Queue a fresh identity row for the file, hiding the
		// previous reports.
		r.resolveIdentified(fi)
	}
	return storage.TxCommit, nil
}

// insertPending implements commit step 2.
func (r *Run) insertPending(tx *sql.Tx) error {
	stmt, err := tx.Prepare(`INSERT INTO files (path, mtime, size) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare files insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Best effort cleanup

	for _, h := range r.pending {
		res, err := stmt.Exec(h.identity.Path, h.identity.Mtime, h.identity.Size)
		if err != nil {
			return fmt.Errorf("failed to insert file %s: %w", h.identity.Path, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read row id for %s: %w", h.identity.Path, err)
		}
		h.rowID = id
	}
	return nil
}

// insertFindings implements commit step 3.
func (r *Run) insertFindings(tx *sql.Tx) error {
	stmt, err := tx.Prepare(
		`INSERT INTO reports (file, line, column, tool, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare reports insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Best effort cleanup

	for _, f := range r.findings {
		if f.handle.rowID == 0 {
			return auditerrors.New(auditerrors.InternalError,
				"finding references an unpersisted file row", nil)
		}
		if _, err := stmt.Exec(f.handle.rowID, f.line, f.column, f.tool, f.message); err != nil {
			return fmt.Errorf("failed to insert finding for %s: %w", f.handle.identity.Path, err)
		}
	}
	return nil
}
