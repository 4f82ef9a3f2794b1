package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunConflictError reports that another run holds the run lock. Fatal to
// the whole run: the caller must abort without writing anything.
type RunConflictError struct {
	// HolderRunID is the run currently holding the lock.
	HolderRunID string
	// AcquiredAt is when the holder claimed it.
	AcquiredAt time.Time
}

// Error implements the error interface.
func (e *RunConflictError) Error() string {
	return fmt.Sprintf("RUN_CONFLICT: run lock held by %s since %s",
		e.HolderRunID, e.AcquiredAt.Format(time.RFC3339))
}

// IsRunConflict returns true if the error is a run lock conflict.
// Uses errors.As to handle wrapped errors.
func IsRunConflict(err error) bool {
	var rc *RunConflictError
	return errors.As(err, &rc)
}

// AcquireRunLock claims the singleton run lock for runID.
//
// The claim is INSERT ... ON CONFLICT DO NOTHING on a one-row table: if
// zero rows were inserted the lock is held elsewhere and a
// RunConflictError identifying the holder is returned. Two runs can
// therefore never dispatch against the same alert history concurrently.
func (s *Store) AcquireRunLock(ctx context.Context, runID string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO run_lock (id, run_id, acquired_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var holder, acquiredAt string
	if err := s.db.QueryRowContext(ctx,
		`SELECT run_id, acquired_at FROM run_lock WHERE id = 1`,
	).Scan(&holder, &acquiredAt); err != nil {
		return fmt.Errorf("acquire run lock: inspect holder: %w", err)
	}

	held, err := time.Parse(time.RFC3339Nano, acquiredAt)
	if err != nil {
		held = time.Time{}
	}
	return &RunConflictError{HolderRunID: holder, AcquiredAt: held}
}

// ReleaseRunLock releases the lock if runID holds it. Releasing a lock
// held by someone else is a no-op, so a late release after a conflict
// cannot steal the current holder's lock.
func (s *Store) ReleaseRunLock(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM run_lock WHERE id = 1 AND run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
