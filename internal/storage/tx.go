package storage

import (
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	auditerrors "srcaudit/internal/errors"
	"srcaudit/internal/logging"
)

// TxOutcome is the closed set of results a transaction body reports back
// to the runner.
type TxOutcome int

const (
	// TxCommit asks the runner to commit the transaction.
	TxCommit TxOutcome = iota
	// TxRollback asks the runner to roll back without retrying; the
	// body's error (possibly nil) is returned as-is.
	TxRollback
	// TxRetry asks the runner to roll back and re-run the body from a
	// clean transactional snapshot after a backoff delay.
	TxRetry
	// TxError asks the runner to roll back and fail. A transient (busy)
	// error is promoted to a retry.
	TxError
)

// TxBody is one transaction attempt. It must be fully re-executable: a
// retried attempt re-runs the body against a fresh transaction, and no
// partial effect of a rolled-back attempt survives (the database's own
// rollback guarantees this, including row-id allocation).
type TxBody func(tx *sql.Tx) (TxOutcome, error)

// RunInTx executes body inside a transaction, retrying the whole body on
// lock contention with randomized exponential backoff. Retries are bounded
// by Options.MaxAttempts; exhausting them escalates to a STORE_BUSY error.
// Non-transient failures roll back and return immediately.
//
// The jitter matters: many analysis runs from a parallel build commit
// concurrently, and synchronized retries would collide again.
func (db *DB) RunInTx(body TxBody) error {
	backoff := time.Duration(db.opts.BackoffBaseMs) * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= db.opts.MaxAttempts; attempt++ {
		outcome, err := db.runOnce(body)

		switch outcome {
		case TxCommit:
			if err == nil {
				return nil
			}
		case TxRollback:
			return err
		case TxError:
			if !IsBusy(err) {
				return err
			}
		case TxRetry:
			// fall through to backoff
		}

		lastErr = err
		if attempt == db.opts.MaxAttempts {
			break
		}

		delay := jitter(backoff)
		db.logger.Debug("transaction contended, retrying", logging.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		})
		time.Sleep(delay)
		backoff *= 2
	}

	return auditerrors.Newf(auditerrors.StoreBusy, lastErr,
		"transaction failed after %d attempts", db.opts.MaxAttempts)
}

// runOnce performs a single attempt: begin, body, commit or rollback.
func (db *DB) runOnce(body TxBody) (outcome TxOutcome, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		if IsBusy(err) {
			return TxRetry, err
		}
		return TxError, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck // Best effort before re-panic
			panic(p)
		}
	}()

	outcome, err = body(tx)
	if outcome != TxCommit {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			db.logger.Error("failed to rollback transaction", logging.Fields{
				"error":          fmt.Sprint(err),
				"rollback_error": rbErr.Error(),
			})
		}
		return outcome, err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		if IsBusy(commitErr) {
			return TxRetry, commitErr
		}
		return TxError, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}
	return TxCommit, nil
}

// jitter spreads a delay uniformly over [d/2, 3d/2).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(d)))
}

// RetryBusy re-runs fn while it fails with a transient busy error, for use
// on the non-transactional read path where individual statements are
// retried rather than a whole transaction. Bounded by the same attempt
// ceiling and backoff as RunInTx.
func (db *DB) RetryBusy(fn func() error) error {
	backoff := time.Duration(db.opts.BackoffBaseMs) * time.Millisecond
	var err error
	for attempt := 1; attempt <= db.opts.MaxAttempts; attempt++ {
		err = fn()
		if !IsBusy(err) {
			return err
		}
		if attempt < db.opts.MaxAttempts {
			time.Sleep(jitter(backoff))
			backoff *= 2
		}
	}
	return auditerrors.Newf(auditerrors.StoreBusy, err,
		"statement still locked after %d attempts", db.opts.MaxAttempts)
}
