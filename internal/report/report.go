// Package report renders a run summary for humans and machines. Both
// renderings are deterministic functions of the run result: same run,
// same bytes.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/reckon/internal/engine"
	"github.com/roach88/reckon/internal/parity"
	"github.com/roach88/reckon/internal/recon"
	"github.com/roach88/reckon/internal/slo"
	"github.com/roach88/reckon/internal/zerotrust"
)

// Summary is the reportable view of one run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Records    RecordCounts          `json:"records"`
	Parity     parity.Report         `json:"parity"`
	Violations []zerotrust.Violation `json:"violations"`
	SLOs       []slo.Status          `json:"slos"`
	Alerts     []AlertChange         `json:"alerts"`

	StoreDimensionsDegraded bool `json:"store_dimensions_degraded"`
}

// RecordCounts breaks the run's record population down by outcome.
type RecordCounts struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Ambiguous int `json:"ambiguous"`
	Skipped   int `json:"skipped"`
}

// AlertChange is one alert transition, flattened for reporting.
type AlertChange struct {
	Change      string `json:"change"`
	Key         string `json:"key"`
	State       string `json:"state"`
	Occurrences int64  `json:"occurrences"`
}

// FromRunResult derives the Summary for a completed run.
func FromRunResult(res *engine.RunResult) Summary {
	counts := RecordCounts{
		Total:   len(res.Records),
		Skipped: len(res.Diagnostics.Skipped),
	}
	for _, rec := range res.Records {
		switch rec.MatchState {
		case recon.MatchStateMatched:
			counts.Matched++
		case recon.MatchStateUnmatched:
			counts.Unmatched++
		case recon.MatchStateAmbiguous:
			counts.Ambiguous++
		}
	}

	alerts := make([]AlertChange, 0, len(res.Transitions))
	for _, tr := range res.Transitions {
		alerts = append(alerts, AlertChange{
			Change:      string(tr.Change),
			Key:         tr.Event.Key,
			State:       string(tr.Event.State),
			Occurrences: tr.Event.OccurrenceCount,
		})
	}

	return Summary{
		RunID:                   res.RunID,
		StartedAt:               res.StartedAt,
		FinishedAt:              res.FinishedAt,
		Records:                 counts,
		Parity:                  res.Report,
		Violations:              res.Violations,
		SLOs:                    res.Statuses,
		Alerts:                  alerts,
		StoreDimensionsDegraded: res.StoreDimensionsDegraded,
	}
}

// JSON renders the summary as indented JSON with a trailing newline.
func (s Summary) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run summary: %w", err)
	}
	return append(data, '\n'), nil
}

// Text renders the summary for terminals.
func (s Summary) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s\n", s.RunID)
	fmt.Fprintf(&b, "  started   %s\n", s.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "  finished  %s\n", s.FinishedAt.UTC().Format(time.RFC3339))
	if s.StoreDimensionsDegraded {
		b.WriteString("  store dimensions unavailable; municipality checks skipped\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "records %d\n", s.Records.Total)
	fmt.Fprintf(&b, "  matched    %d\n", s.Records.Matched)
	fmt.Fprintf(&b, "  unmatched  %d\n", s.Records.Unmatched)
	fmt.Fprintf(&b, "  ambiguous  %d\n", s.Records.Ambiguous)
	fmt.Fprintf(&b, "  skipped    %d\n", s.Records.Skipped)
	b.WriteString("\n")

	fmt.Fprintf(&b, "parity %s\n", passFail(s.Parity.Passed))
	fmt.Fprintf(&b, "  flat       %d\n", s.Parity.FlatStampedCount)
	fmt.Fprintf(&b, "  aggregate  %d\n", s.Parity.AggregateStampedCount)
	fmt.Fprintf(&b, "  deviation  %g (tolerance %g)\n", s.Parity.RelativeDeviation, s.Parity.Tolerance)
	b.WriteString("\n")

	fmt.Fprintf(&b, "violations %d\n", len(s.Violations))
	for _, v := range s.Violations {
		fmt.Fprintf(&b, "  [%s] %s %s: %s\n", v.Severity, v.RuleID, v.EntityRef, v.Detail)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "slo %d/%d passing\n", s.sloPassing(), len(s.SLOs))
	for _, st := range s.SLOs {
		fmt.Fprintf(&b, "  %s %s current=%g target=%g (%s)", passFail(st.Passed), st.Name, st.CurrentValue, st.Target, st.Comparator)
		if st.Detail != "" {
			fmt.Fprintf(&b, " %s", st.Detail)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "alerts %d\n", len(s.Alerts))
	for _, a := range s.Alerts {
		fmt.Fprintf(&b, "  %s %s x%d\n", a.Change, a.Key, a.Occurrences)
	}

	return b.String()
}

func (s Summary) sloPassing() int {
	var n int
	for _, st := range s.SLOs {
		if st.Passed {
			n++
		}
	}
	return n
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
