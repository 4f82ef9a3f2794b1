package recon

import (
	"time"
)

// MatchState classifies the outcome of matching one raw transaction
// against the authoritative pool.
type MatchState string

const (
	// MatchStateMatched means exactly one authoritative record shared the
	// canonical key and its timestamp was adopted.
	MatchStateMatched MatchState = "matched"

	// MatchStateUnmatched means no authoritative record shared the
	// canonical key. ResolvedTimestamp stays nil.
	MatchStateUnmatched MatchState = "unmatched"

	// MatchStateAmbiguous means multiple authoritative records shared the
	// canonical key. The oldest-wins policy selected one; AltCandidates
	// records how many alternatives were passed over.
	MatchStateAmbiguous MatchState = "ambiguous_multi_match"
)

// RawTransaction is one ingested device payload. Created by the ingestion
// collaborator, immutable, retained for audit. The engine never mutates it.
type RawTransaction struct {
	// RawID is the source-native identifier. Casing and punctuation are
	// arbitrary ("TX-001", "tx_001" and "tx001" all name the same capture).
	RawID string `json:"raw_id"`

	// StoreID identifies the capturing store.
	StoreID string `json:"store_id"`

	// CapturedAt is the device-side capture time. Frequently absent and
	// never trusted for ResolvedTimestamp.
	CapturedAt *time.Time `json:"captured_at,omitempty"`

	// Payload is the semi-structured capture document: items, amounts,
	// detected brands, demographic and context fields.
	Payload map[string]any `json:"payload"`
}

// AuthoritativeRecord is one record from the authoritative sales source.
// It is the only source trusted to supply transaction timestamps.
// Externally owned and immutable; the engine only reads it.
type AuthoritativeRecord struct {
	AuthoritativeID      string    `json:"authoritative_id"`
	TransactionTimestamp time.Time `json:"transaction_timestamp"`
	StoreID              string    `json:"store_id"`

	// Business attributes folded into matched records by the enricher.
	Municipality string   `json:"municipality,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	QualityFlag  string   `json:"quality_flag,omitempty"`
}

// PayloadDigest carries the derived facts validators consume. It is built
// from the raw payload and, for matched records, enriched with
// authoritative attributes.
type PayloadDigest struct {
	// ContentHash is the domain-separated SHA-256 of the digest's source
	// fields. Identical inputs always produce identical hashes.
	ContentHash string `json:"content_hash"`

	// SchemaVersion is the payload's declared schema version ("1" when
	// the payload does not declare one).
	SchemaVersion string `json:"schema_version"`

	// Fields lists the payload's top-level field names, sorted. The
	// payload-shape rule checks this against the required set for
	// SchemaVersion.
	Fields []string `json:"fields"`

	ItemCount int `json:"item_count"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Municipality is the declared municipality, possibly empty or
	// "Unknown". The false-verification and municipality-consistency
	// rules inspect it.
	Municipality string `json:"municipality,omitempty"`

	// LocationVerified is the payload's claim that its location was
	// verified. Zero-trust validation checks the claim against evidence.
	LocationVerified bool `json:"location_verified"`

	// QualityFlag comes from the matched authoritative record; empty for
	// unmatched records.
	QualityFlag string `json:"quality_flag,omitempty"`
}

// CanonicalRecord is the reconciled unit of work. One is created per raw
// transaction during a reconciliation run. Re-running reconciliation on
// the same raw and authoritative batches produces identical records.
type CanonicalRecord struct {
	CanonicalKey CanonicalKey `json:"canonical_key"`
	SourceRawID  string       `json:"source_raw_id"`

	// MatchedAuthoritativeID is empty for unmatched records.
	MatchedAuthoritativeID string `json:"matched_authoritative_id,omitempty"`

	// ResolvedTimestamp is the authoritative timestamp if matched, else
	// nil. Never inferred (CP-2).
	ResolvedTimestamp *time.Time `json:"resolved_timestamp,omitempty"`

	StoreID       string        `json:"store_id"`
	PayloadDigest PayloadDigest `json:"payload_digest"`
	MatchState    MatchState    `json:"match_state"`

	// AltCandidates is the number of authoritative candidates passed over
	// by the oldest-wins tie-break. Zero unless MatchState is
	// MatchStateAmbiguous. Recorded for audit.
	AltCandidates int `json:"alt_candidates,omitempty"`
}

// Stamped reports whether the record carries a recovered timestamp.
func (r CanonicalRecord) Stamped() bool {
	return r.ResolvedTimestamp != nil
}

// Diagnostics aggregates per-record problems encountered while
// reconciling a batch. One malformed record never aborts the batch; it is
// skipped and reported here.
type Diagnostics struct {
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}

// SkippedRecord describes one record excluded from a reconciliation run.
type SkippedRecord struct {
	// Source is "raw" or "authoritative".
	Source string `json:"source"`
	ID     string `json:"id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
