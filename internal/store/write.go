package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/reckon/internal/alert"
	"github.com/roach88/reckon/internal/parity"
	"github.com/roach88/reckon/internal/recon"
	"github.com/roach88/reckon/internal/slo"
	"github.com/roach88/reckon/internal/zerotrust"
)

// RunRecord is everything one reconciliation run produces.
type RunRecord struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Records     []recon.CanonicalRecord
	Diagnostics recon.Diagnostics
	Report      parity.Report
	Violations  []zerotrust.Violation
	Statuses    []slo.Status
	Transitions []alert.Transition
}

// CommitRun persists a complete run in one transaction (CP-1).
//
// Everything lands or nothing does: canonical records, the parity
// report, violations, SLO statuses, diagnostics, the alert transition
// log, and the alert_events FSM state updates. Uses ON CONFLICT DO
// NOTHING on run-keyed rows so a retried commit of the same run is
// idempotent.
func (s *Store) CommitRun(ctx context.Context, run RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// A run that already committed is done; re-running the commit must
	// not duplicate its append-only rows.
	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE id = ?`, run.RunID).Scan(&exists); err != nil {
		return fmt.Errorf("commit run: check existing: %w", err)
	}
	if exists > 0 {
		return nil
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	if err := insertRecords(ctx, tx, run.RunID, run.Records); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	if err := insertReport(ctx, tx, run.RunID, run.Report); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	if err := insertViolations(ctx, tx, run.RunID, run.Violations); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	if err := insertStatuses(ctx, tx, run.RunID, run.Statuses); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	if err := insertDiagnostics(ctx, tx, run.RunID, run.Diagnostics); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	if err := applyAlertTransitions(ctx, tx, run.RunID, run.Transitions); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, run RunRecord) error {
	var matched, unmatched, ambiguous int
	for _, rec := range run.Records {
		switch rec.MatchState {
		case recon.MatchStateMatched:
			matched++
		case recon.MatchStateUnmatched:
			unmatched++
		case recon.MatchStateAmbiguous:
			ambiguous++
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, finished_at, raw_count, matched_count, unmatched_count, ambiguous_count, skipped_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.RunID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		len(run.Records),
		matched,
		unmatched,
		ambiguous,
		len(run.Diagnostics.Skipped),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, runID string, records []recon.CanonicalRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO canonical_records
		(run_id, source_raw_id, canonical_key, matched_authoritative_id, resolved_timestamp,
		 store_id, match_state, alt_candidates, payload_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, source_raw_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare canonical record insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		digestJSON, err := json.Marshal(rec.PayloadDigest)
		if err != nil {
			return fmt.Errorf("marshal digest for %s: %w", rec.SourceRawID, err)
		}

		var matchedID, resolved sql.NullString
		if rec.MatchedAuthoritativeID != "" {
			matchedID = sql.NullString{String: rec.MatchedAuthoritativeID, Valid: true}
		}
		if rec.ResolvedTimestamp != nil {
			resolved = sql.NullString{String: formatTime(*rec.ResolvedTimestamp), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			runID,
			rec.SourceRawID,
			string(rec.CanonicalKey),
			matchedID,
			resolved,
			rec.StoreID,
			string(rec.MatchState),
			rec.AltCandidates,
			string(digestJSON),
		); err != nil {
			return fmt.Errorf("insert canonical record %s: %w", rec.SourceRawID, err)
		}
	}
	return nil
}

func insertReport(ctx context.Context, tx *sql.Tx, runID string, report parity.Report) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO parity_reports
		(run_id, as_of, flat_stamped_count, aggregate_stamped_count, relative_deviation, tolerance, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		runID,
		formatTime(report.AsOf),
		report.FlatStampedCount,
		report.AggregateStampedCount,
		report.RelativeDeviation,
		report.Tolerance,
		boolToInt(report.Passed),
	)
	if err != nil {
		return fmt.Errorf("insert parity report: %w", err)
	}
	return nil
}

func insertViolations(ctx context.Context, tx *sql.Tx, runID string, violations []zerotrust.Violation) error {
	for _, viol := range violations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO violations (run_id, rule_id, entity_ref, severity, detail)
			VALUES (?, ?, ?, ?, ?)
		`, runID, viol.RuleID, viol.EntityRef, string(viol.Severity), viol.Detail); err != nil {
			return fmt.Errorf("insert violation %s/%s: %w", viol.RuleID, viol.EntityRef, err)
		}
	}
	return nil
}

func insertStatuses(ctx context.Context, tx *sql.Tx, runID string, statuses []slo.Status) error {
	for _, status := range statuses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO slo_statuses
			(run_id, slo_name, current_value, target, comparator, severity, passed, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, slo_name) DO NOTHING
		`,
			runID,
			status.Name,
			status.CurrentValue,
			status.Target,
			string(status.Comparator),
			string(status.Severity),
			boolToInt(status.Passed),
			status.Detail,
		); err != nil {
			return fmt.Errorf("insert slo status %s: %w", status.Name, err)
		}
	}
	return nil
}

func insertDiagnostics(ctx context.Context, tx *sql.Tx, runID string, diag recon.Diagnostics) error {
	for _, skipped := range diag.Skipped {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics (run_id, source, record_id, code, reason)
			VALUES (?, ?, ?, ?, ?)
		`, runID, skipped.Source, skipped.ID, skipped.Code, skipped.Reason); err != nil {
			return fmt.Errorf("insert diagnostic for %s: %w", skipped.ID, err)
		}
	}
	return nil
}

// applyAlertTransitions appends the transition log and folds the new FSM
// states into alert_events. Cleared alerts are removed - Clear needs no
// storage, and the transition row keeps the audit trail.
func applyAlertTransitions(ctx context.Context, tx *sql.Tx, runID string, transitions []alert.Transition) error {
	for _, tr := range transitions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alert_transitions (run_id, key, change, state, occurred_at)
			VALUES (?, ?, ?, ?, ?)
		`, runID, tr.Event.Key, string(tr.Change), string(tr.Event.State), formatTime(tr.Event.LastSeenAt)); err != nil {
			return fmt.Errorf("insert alert transition %s: %w", tr.Event.Key, err)
		}

		if tr.Event.State == alert.StateClear {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM alert_events WHERE key = ?`, tr.Event.Key); err != nil {
				return fmt.Errorf("clear alert event %s: %w", tr.Event.Key, err)
			}
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alert_events
			(key, kind, state, first_seen_at, last_seen_at, occurrence_count, acknowledged)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				state = excluded.state,
				last_seen_at = excluded.last_seen_at,
				occurrence_count = excluded.occurrence_count,
				acknowledged = excluded.acknowledged
		`,
			tr.Event.Key,
			string(tr.Event.Kind),
			string(tr.Event.State),
			formatTime(tr.Event.FirstSeenAt),
			formatTime(tr.Event.LastSeenAt),
			tr.Event.OccurrenceCount,
			boolToInt(tr.Event.Acknowledged),
		); err != nil {
			return fmt.Errorf("upsert alert event %s: %w", tr.Event.Key, err)
		}
	}
	return nil
}

// Acknowledge marks an Active alert Acknowledged, suppressing repeat
// notifications without resolving the underlying condition. Returns an
// error when no Active alert exists under the key.
func (s *Store) Acknowledge(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alert_events
		SET state = ?, acknowledged = 1
		WHERE key = ? AND state = ?
	`, string(alert.StateAcknowledged), key, string(alert.StateActive))
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", key, err)
	}
	if affected == 0 {
		return fmt.Errorf("acknowledge %s: no active alert under that key", key)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
