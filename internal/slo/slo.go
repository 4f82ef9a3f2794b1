// Package slo evaluates named service-level objectives over the outputs
// of a validation run: the parity report, the zero-trust violation set
// and the canonical record population.
//
// Evaluation is a pure mapping from definitions to statuses. A metric
// whose denominator is structurally unavailable degrades to a failing
// status carrying the Unavailable sentinel - never a crash, never a
// silent skip.
package slo

import (
	"fmt"

	"github.com/roach88/reckon/internal/parity"
	"github.com/roach88/reckon/internal/recon"
	"github.com/roach88/reckon/internal/zerotrust"
)

// Metric names a value extractor over run outputs.
type Metric string

const (
	// MetricParityDeviation is the parity report's relative deviation.
	MetricParityDeviation Metric = "parity_deviation"

	// MetricStampedRatio is stamped records / total records.
	MetricStampedRatio Metric = "stamped_ratio"

	// MetricUnmatchedCount counts records with no authoritative match.
	MetricUnmatchedCount Metric = "unmatched_count"

	// MetricAmbiguousCount counts multi-match records.
	MetricAmbiguousCount Metric = "ambiguous_count"

	// MetricCriticalViolations counts critical zero-trust violations.
	MetricCriticalViolations Metric = "critical_violations"

	// MetricHighViolations counts high zero-trust violations.
	MetricHighViolations Metric = "high_violations"

	// MetricTotalViolations counts all zero-trust violations.
	MetricTotalViolations Metric = "total_violations"

	// MetricStoreCoverage is the fraction of dimension stores with at
	// least one canonical record this run. Requires the store-dimension
	// collaborator; unavailable without it.
	MetricStoreCoverage Metric = "store_coverage"
)

// Comparator relates a current value to its target.
type Comparator string

const (
	ComparatorLTE Comparator = "lte"
	ComparatorGTE Comparator = "gte"
	ComparatorEQ  Comparator = "eq"
)

// Unavailable is the sentinel current value emitted when a metric cannot
// be computed. The status always fails so the outage is surfaced instead
// of silently skipped.
const Unavailable = -1

// Definition declares one SLO: which metric, how to compare, against
// what target, and how severe a breach is.
type Definition struct {
	Name       string             `json:"name" yaml:"name"`
	Metric     Metric             `json:"metric" yaml:"metric"`
	Comparator Comparator         `json:"comparator" yaml:"comparator"`
	Target     float64            `json:"target" yaml:"target"`
	Severity   zerotrust.Severity `json:"severity" yaml:"severity"`
}

// Status is the per-run outcome of one definition.
type Status struct {
	Name         string             `json:"name"`
	CurrentValue float64            `json:"current_value"`
	Target       float64            `json:"target"`
	Comparator   Comparator         `json:"comparator"`
	Severity     zerotrust.Severity `json:"severity"`
	Passed       bool               `json:"passed"`

	// Detail explains sentinel values and is empty otherwise.
	Detail string `json:"detail,omitempty"`
}

// Inputs carries everything the extractors read. StoreDimensions may be
// nil when the collaborator is disconnected; store_coverage then
// evaluates to Unavailable.
type Inputs struct {
	Report          parity.Report
	Violations      []zerotrust.Violation
	Records         []recon.CanonicalRecord
	StoreDimensions map[string]string
}

// DefaultDefinitions is the objective set the original deployment runs
// with. Deployments override via configuration.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "parity-within-tolerance", Metric: MetricParityDeviation, Comparator: ComparatorLTE, Target: parity.DefaultTolerance, Severity: zerotrust.SeverityHigh},
		{Name: "no-critical-violations", Metric: MetricCriticalViolations, Comparator: ComparatorEQ, Target: 0, Severity: zerotrust.SeverityCritical},
		{Name: "stamped-coverage", Metric: MetricStampedRatio, Comparator: ComparatorGTE, Target: 0.95, Severity: zerotrust.SeverityMedium},
		{Name: "store-coverage", Metric: MetricStoreCoverage, Comparator: ComparatorGTE, Target: 0.80, Severity: zerotrust.SeverityMedium},
	}
}

// Evaluate computes a status for every definition.
//
// Statuses come back in definition order. Unknown metrics degrade to the
// Unavailable sentinel rather than erroring: a typo in an objective
// definition should show up on the scoreboard, not take the run down.
func Evaluate(in Inputs, defs []Definition) []Status {
	statuses := make([]Status, 0, len(defs))
	for _, def := range defs {
		status := Status{
			Name:       def.Name,
			Target:     def.Target,
			Comparator: def.Comparator,
			Severity:   def.Severity,
		}

		value, err := extract(def.Metric, in)
		if err != nil {
			status.CurrentValue = Unavailable
			status.Passed = false
			status.Detail = fmt.Sprintf("METRIC_UNAVAILABLE: %v", err)
			statuses = append(statuses, status)
			continue
		}

		status.CurrentValue = value
		status.Passed = compare(value, def.Comparator, def.Target)
		statuses = append(statuses, status)
	}
	return statuses
}

// extract computes the metric's current value from the run outputs.
func extract(metric Metric, in Inputs) (float64, error) {
	switch metric {
	case MetricParityDeviation:
		return in.Report.RelativeDeviation, nil

	case MetricStampedRatio:
		if len(in.Records) == 0 {
			return 0, fmt.Errorf("stamped ratio undefined over an empty record set")
		}
		var stamped int
		for _, rec := range in.Records {
			if rec.Stamped() {
				stamped++
			}
		}
		return float64(stamped) / float64(len(in.Records)), nil

	case MetricUnmatchedCount:
		return float64(countState(in.Records, recon.MatchStateUnmatched)), nil

	case MetricAmbiguousCount:
		return float64(countState(in.Records, recon.MatchStateAmbiguous)), nil

	case MetricCriticalViolations:
		return float64(zerotrust.CountBySeverity(in.Violations)[zerotrust.SeverityCritical]), nil

	case MetricHighViolations:
		return float64(zerotrust.CountBySeverity(in.Violations)[zerotrust.SeverityHigh]), nil

	case MetricTotalViolations:
		return float64(len(in.Violations)), nil

	case MetricStoreCoverage:
		if in.StoreDimensions == nil {
			return 0, fmt.Errorf("store dimension source disconnected")
		}
		if len(in.StoreDimensions) == 0 {
			return 0, fmt.Errorf("store dimension source empty")
		}
		seen := make(map[string]bool)
		for _, rec := range in.Records {
			seen[rec.StoreID] = true
		}
		var covered int
		for storeID := range in.StoreDimensions {
			if seen[storeID] {
				covered++
			}
		}
		return float64(covered) / float64(len(in.StoreDimensions)), nil

	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
}

func countState(records []recon.CanonicalRecord, state recon.MatchState) int {
	var n int
	for _, rec := range records {
		if rec.MatchState == state {
			n++
		}
	}
	return n
}

// compare applies the comparator. Equality is exact: eq targets are
// integer-valued counts in practice.
func compare(value float64, cmp Comparator, target float64) bool {
	switch cmp {
	case ComparatorLTE:
		return value <= target
	case ComparatorGTE:
		return value >= target
	case ComparatorEQ:
		return value == target
	default:
		return false
	}
}
