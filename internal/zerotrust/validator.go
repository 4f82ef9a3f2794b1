package zerotrust

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/reckon/internal/recon"
)

// Validator evaluates the zero-trust rule set over canonical records.
//
// A Validator is immutable after construction and safe for concurrent
// use; the engine shards the record set and validates shards in
// parallel.
type Validator struct {
	bounds         GeoBounds
	requiredFields map[string][]string

	// storeMunicipalities maps store ID to its dimension municipality.
	// Nil when the store-dimension collaborator is unavailable, in which
	// case the municipality-consistency rule cannot produce evidence and
	// is skipped (the store-coverage SLO surfaces the outage instead).
	storeMunicipalities map[string]string
}

// Option configures a Validator.
type Option func(*Validator)

// WithBounds overrides the default NCR bounding box.
func WithBounds(b GeoBounds) Option {
	return func(v *Validator) { v.bounds = b }
}

// WithRequiredFields overrides the required field set per schema version.
func WithRequiredFields(required map[string][]string) Option {
	return func(v *Validator) { v.requiredFields = required }
}

// WithStoreMunicipalities supplies the store-dimension municipality map.
func WithStoreMunicipalities(m map[string]string) Option {
	return func(v *Validator) { v.storeMunicipalities = m }
}

// NewValidator creates a Validator with NCR bounds and the default
// required field sets unless overridden.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		bounds:         DefaultNCRBounds(),
		requiredFields: DefaultRequiredFields(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate scans the record set and returns every rule breach found.
//
// Rules are applied per record in a fixed order; record order follows the
// input slice. Violations are freshly derived - nothing about a previous
// run's findings leaks in.
func (v *Validator) Validate(records []recon.CanonicalRecord) []Violation {
	var violations []Violation
	for _, rec := range records {
		violations = append(violations, v.checkRecord(rec)...)
	}
	return violations
}

// checkRecord applies every rule to one record. Exposed to the engine via
// Validate; rules never depend on each other's outcome.
func (v *Validator) checkRecord(rec recon.CanonicalRecord) []Violation {
	var out []Violation
	if viol, ok := v.coordinateBounds(rec); ok {
		out = append(out, viol)
	}
	if viol, ok := v.falseVerification(rec); ok {
		out = append(out, viol)
	}
	if viol, ok := v.payloadShape(rec); ok {
		out = append(out, viol)
	}
	if viol, ok := v.municipalityConsistency(rec); ok {
		out = append(out, viol)
	}
	return out
}

// coordinateBounds: declared coordinates must fall inside the configured
// bounding box. Records without coordinates are exempt - absence is not a
// claim.
func (v *Validator) coordinateBounds(rec recon.CanonicalRecord) (Violation, bool) {
	d := rec.PayloadDigest
	if d.Latitude == nil || d.Longitude == nil {
		return Violation{}, false
	}
	if v.bounds.Contains(*d.Latitude, *d.Longitude) {
		return Violation{}, false
	}
	return Violation{
		RuleID:    RuleCoordinateBounds,
		EntityRef: rec.SourceRawID,
		Severity:  SeverityMedium,
		Detail: fmt.Sprintf("coordinates (%.4f, %.4f) outside bounds lat [%.2f, %.2f] lon [%.2f, %.2f]",
			*d.Latitude, *d.Longitude, v.bounds.MinLat, v.bounds.MaxLat, v.bounds.MinLon, v.bounds.MaxLon),
	}, true
}

// falseVerification: a record must not claim "location verified" without
// a municipality as evidence. Guards against upstream code marking
// records verified by default.
func (v *Validator) falseVerification(rec recon.CanonicalRecord) (Violation, bool) {
	d := rec.PayloadDigest
	if !d.LocationVerified {
		return Violation{}, false
	}
	if d.Municipality != "" && !strings.EqualFold(d.Municipality, "unknown") {
		return Violation{}, false
	}
	return Violation{
		RuleID:    RuleFalseVerification,
		EntityRef: rec.SourceRawID,
		Severity:  SeverityCritical,
		Detail:    fmt.Sprintf("location_verified=true with municipality %q", d.Municipality),
	}, true
}

// payloadShape: the digest must contain the full required field set for
// its declared schema version. Schema drift guard.
func (v *Validator) payloadShape(rec recon.CanonicalRecord) (Violation, bool) {
	required, known := v.requiredFields[rec.PayloadDigest.SchemaVersion]
	if !known {
		return Violation{
			RuleID:    RulePayloadShape,
			EntityRef: rec.SourceRawID,
			Severity:  SeverityHigh,
			Detail:    fmt.Sprintf("undeclared schema version %q", rec.PayloadDigest.SchemaVersion),
		}, true
	}

	present := make(map[string]bool, len(rec.PayloadDigest.Fields))
	for _, f := range rec.PayloadDigest.Fields {
		present[f] = true
	}

	var missing []string
	for _, f := range required {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return Violation{}, false
	}
	sort.Strings(missing)
	return Violation{
		RuleID:    RulePayloadShape,
		EntityRef: rec.SourceRawID,
		Severity:  SeverityHigh,
		Detail: fmt.Sprintf("schema version %q missing required fields: %s",
			rec.PayloadDigest.SchemaVersion, strings.Join(missing, ", ")),
	}, true
}

// municipalityConsistency: a record's declared municipality must match
// its store's dimension municipality. Skipped when either side has no
// evidence to compare.
func (v *Validator) municipalityConsistency(rec recon.CanonicalRecord) (Violation, bool) {
	if v.storeMunicipalities == nil {
		return Violation{}, false
	}
	declared := rec.PayloadDigest.Municipality
	if declared == "" || strings.EqualFold(declared, "unknown") {
		return Violation{}, false
	}
	expected, ok := v.storeMunicipalities[rec.StoreID]
	if !ok || expected == "" {
		return Violation{}, false
	}
	if strings.EqualFold(declared, expected) {
		return Violation{}, false
	}
	return Violation{
		RuleID:    RuleMunicipalityConsistency,
		EntityRef: rec.StoreID,
		Severity:  SeverityMedium,
		Detail:    fmt.Sprintf("record %s declares municipality %q but store dimension says %q", rec.SourceRawID, declared, expected),
	}, true
}

// SortViolations orders violations by (rule, entity, detail) so shard
// merge results are deterministic across runs.
func SortViolations(violations []Violation) {
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].RuleID != violations[j].RuleID {
			return violations[i].RuleID < violations[j].RuleID
		}
		if violations[i].EntityRef != violations[j].EntityRef {
			return violations[i].EntityRef < violations[j].EntityRef
		}
		return violations[i].Detail < violations[j].Detail
	})
}

// CountBySeverity tallies violations per severity level.
func CountBySeverity(violations []Violation) map[Severity]int {
	counts := make(map[Severity]int)
	for _, viol := range violations {
		counts[viol.Severity]++
	}
	return counts
}
