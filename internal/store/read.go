package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/reckon/internal/alert"
	"github.com/roach88/reckon/internal/parity"
	"github.com/roach88/reckon/internal/recon"
	"github.com/roach88/reckon/internal/slo"
	"github.com/roach88/reckon/internal/zerotrust"
)

// LoadAlertHistory returns the persisted non-Clear alert events keyed by
// alert identity, ready to feed alert.Dispatch.
//
// Returns an empty map (not nil) when no alerts are open.
func (s *Store) LoadAlertHistory(ctx context.Context) (map[string]alert.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, kind, state, first_seen_at, last_seen_at, occurrence_count, acknowledged
		FROM alert_events
		ORDER BY key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load alert history: %w", err)
	}
	defer rows.Close()

	history := make(map[string]alert.Event)
	for rows.Next() {
		event, err := scanAlertEvent(rows)
		if err != nil {
			return nil, err
		}
		history[event.Key] = event
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert history: %w", err)
	}

	return history, nil
}

// ReadAlertEvents returns all open alert events in key order.
func (s *Store) ReadAlertEvents(ctx context.Context) ([]alert.Event, error) {
	history, err := s.LoadAlertHistory(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]alert.Event, 0, len(history))
	keys := make([]string, 0, len(history))
	for key := range history {
		keys = append(keys, key)
	}
	// Map iteration is randomized; restore key order.
	sort.Strings(keys)
	for _, key := range keys {
		events = append(events, history[key])
	}
	return events, nil
}

// ReadCanonicalRecords returns a run's canonical records ordered by
// source raw ID (CP-3: deterministic reads).
func (s *Store) ReadCanonicalRecords(ctx context.Context, runID string) ([]recon.CanonicalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_raw_id, canonical_key, matched_authoritative_id, resolved_timestamp,
		       store_id, match_state, alt_candidates, payload_digest
		FROM canonical_records
		WHERE run_id = ?
		ORDER BY source_raw_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query canonical records: %w", err)
	}
	defer rows.Close()

	records := []recon.CanonicalRecord{}
	for rows.Next() {
		var (
			rec       recon.CanonicalRecord
			key       string
			matchedID sql.NullString
			resolved  sql.NullString
			state     string
			digest    string
		)
		if err := rows.Scan(&rec.SourceRawID, &key, &matchedID, &resolved,
			&rec.StoreID, &state, &rec.AltCandidates, &digest); err != nil {
			return nil, fmt.Errorf("scan canonical record: %w", err)
		}

		rec.CanonicalKey = recon.CanonicalKey(key)
		rec.MatchState = recon.MatchState(state)
		if matchedID.Valid {
			rec.MatchedAuthoritativeID = matchedID.String
		}
		if resolved.Valid {
			ts, err := time.Parse(time.RFC3339Nano, resolved.String)
			if err != nil {
				return nil, fmt.Errorf("parse resolved timestamp for %s: %w", rec.SourceRawID, err)
			}
			rec.ResolvedTimestamp = &ts
		}
		if err := json.Unmarshal([]byte(digest), &rec.PayloadDigest); err != nil {
			return nil, fmt.Errorf("unmarshal digest for %s: %w", rec.SourceRawID, err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canonical records: %w", err)
	}

	return records, nil
}

// ReadParityReport returns a run's parity report, or sql.ErrNoRows if
// the run committed nothing.
func (s *Store) ReadParityReport(ctx context.Context, runID string) (parity.Report, error) {
	var (
		report parity.Report
		asOf   string
		passed int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT as_of, flat_stamped_count, aggregate_stamped_count, relative_deviation, tolerance, passed
		FROM parity_reports
		WHERE run_id = ?
	`, runID).Scan(&asOf, &report.FlatStampedCount, &report.AggregateStampedCount,
		&report.RelativeDeviation, &report.Tolerance, &passed)
	if err != nil {
		return parity.Report{}, fmt.Errorf("read parity report: %w", err)
	}

	report.AsOf, err = time.Parse(time.RFC3339Nano, asOf)
	if err != nil {
		return parity.Report{}, fmt.Errorf("parse as_of: %w", err)
	}
	report.Passed = passed == 1
	return report, nil
}

// ReadSLOStatuses returns a run's SLO statuses in name order.
func (s *Store) ReadSLOStatuses(ctx context.Context, runID string) ([]slo.Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slo_name, current_value, target, comparator, severity, passed, detail
		FROM slo_statuses
		WHERE run_id = ?
		ORDER BY slo_name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query slo statuses: %w", err)
	}
	defer rows.Close()

	statuses := []slo.Status{}
	for rows.Next() {
		var (
			status     slo.Status
			comparator string
			severity   string
			passed     int
		)
		if err := rows.Scan(&status.Name, &status.CurrentValue, &status.Target,
			&comparator, &severity, &passed, &status.Detail); err != nil {
			return nil, fmt.Errorf("scan slo status: %w", err)
		}
		status.Comparator = slo.Comparator(comparator)
		status.Severity = zerotrust.Severity(severity)
		status.Passed = passed == 1
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slo statuses: %w", err)
	}

	return statuses, nil
}

func scanAlertEvent(rows *sql.Rows) (alert.Event, error) {
	var (
		event        alert.Event
		kind         string
		state        string
		firstSeen    string
		lastSeen     string
		acknowledged int
	)
	if err := rows.Scan(&event.Key, &kind, &state, &firstSeen, &lastSeen,
		&event.OccurrenceCount, &acknowledged); err != nil {
		return alert.Event{}, fmt.Errorf("scan alert event: %w", err)
	}

	event.Kind = alert.Kind(kind)
	event.State = alert.State(state)
	event.Acknowledged = acknowledged == 1

	var err error
	event.FirstSeenAt, err = time.Parse(time.RFC3339Nano, firstSeen)
	if err != nil {
		return alert.Event{}, fmt.Errorf("parse first_seen_at for %s: %w", event.Key, err)
	}
	event.LastSeenAt, err = time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return alert.Event{}, fmt.Errorf("parse last_seen_at for %s: %w", event.Key, err)
	}

	return event, nil
}
