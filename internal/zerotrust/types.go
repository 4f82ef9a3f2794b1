package zerotrust

// Severity ranks how bad a violation or SLO breach is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rule identifiers. Violations carry these so alert state can be keyed by
// (rule, entity).
const (
	RuleCoordinateBounds        = "coordinate-bounds"
	RuleFalseVerification       = "false-verification"
	RulePayloadShape            = "payload-shape"
	RuleMunicipalityConsistency = "municipality-consistency"
)

// Violation is a single zero-trust rule breach. Generated fresh each run
// and appended to history; never mutated.
type Violation struct {
	RuleID string `json:"rule_id"`

	// EntityRef identifies the offending entity: a source raw ID for
	// record-level rules, a store ID for store-level ones.
	EntityRef string `json:"entity_ref"`

	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// GeoBounds is the bounding box coordinate claims must fall within.
type GeoBounds struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// DefaultNCRBounds is the National Capital Region bounding box the
// original deployment validates against. Override in configuration for
// other geographies.
func DefaultNCRBounds() GeoBounds {
	return GeoBounds{MinLat: 14.0, MaxLat: 15.0, MinLon: 120.5, MaxLon: 121.5}
}

// Contains reports whether the coordinate pair falls inside the box
// (inclusive edges).
func (b GeoBounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// DefaultRequiredFields is the required payload field set per declared
// schema version. Version 2 payloads added brand detection and payment
// capture.
func DefaultRequiredFields() map[string][]string {
	return map[string][]string{
		"1": {"items", "total_amount"},
		"2": {"items", "total_amount", "brands", "payment_method"},
	}
}
