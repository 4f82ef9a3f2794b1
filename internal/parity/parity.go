// Package parity verifies that two independently materialized views of
// the stamped-transaction population agree within a numeric tolerance.
//
// The flat count is taken directly from the canonical records; the
// aggregate count comes from the aggregate-store collaborator, whose
// derivation path must be structurally independent of the flat one or the
// check is vacuous. Persistent divergence signals a broken transformation
// upstream, not noise.
package parity

import (
	"math"
	"time"

	"github.com/roach88/reckon/internal/recon"
)

// DefaultTolerance is the relative deviation allowed between the flat and
// aggregate stamped counts (0.5%). Configurable per deployment.
const DefaultTolerance = 0.005

// Report is the outcome of one parity check.
type Report struct {
	AsOf                  time.Time `json:"as_of"`
	FlatStampedCount      int64     `json:"flat_stamped_count"`
	AggregateStampedCount int64     `json:"aggregate_stamped_count"`
	RelativeDeviation     float64   `json:"relative_deviation"`
	Tolerance             float64   `json:"tolerance"`
	Passed                bool      `json:"passed"`
}

// Check compares the stamped-record population against the independently
// aggregated count.
//
// RelativeDeviation is |aggregate - flat| / flat, computed from the
// integer difference rather than as |1 - aggregate/flat| so that exact
// boundary cases (e.g. 1005 vs 1000 at tolerance 0.005) are not lost to
// floating-point rounding. The tolerance comparison is inclusive.
//
// Degenerate cases: both counts zero passes with zero deviation; a zero
// flat count against a non-zero aggregate cannot be divided and is
// treated as maximal deviation (failed).
func Check(records []recon.CanonicalRecord, aggregateCount int64, tolerance float64, asOf time.Time) Report {
	var flat int64
	for _, rec := range records {
		if rec.Stamped() {
			flat++
		}
	}

	report := Report{
		AsOf:                  asOf,
		FlatStampedCount:      flat,
		AggregateStampedCount: aggregateCount,
		Tolerance:             tolerance,
	}

	switch {
	case flat == 0 && aggregateCount == 0:
		report.RelativeDeviation = 0
		report.Passed = true
	case flat == 0:
		report.RelativeDeviation = 1
		report.Passed = false
	default:
		diff := aggregateCount - flat
		report.RelativeDeviation = math.Abs(float64(diff)) / float64(flat)
		report.Passed = report.RelativeDeviation <= tolerance
	}

	return report
}
