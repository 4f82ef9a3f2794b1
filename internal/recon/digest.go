package recon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Domain prefix for content-addressed digest hashes. Version suffix
// enables future algorithm migration.
const domainDigest = "reckon/digest/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DigestFromPayload derives a PayloadDigest from a raw capture document.
//
// The content hash is computed over the JSON encoding of the payload.
// encoding/json sorts map keys at every level, so identical payloads hash
// identically regardless of map iteration order.
//
// Enrichment with authoritative attributes happens separately; see
// enrich.go.
func DigestFromPayload(payload map[string]any) (PayloadDigest, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return PayloadDigest{}, fmt.Errorf("digest payload: %w", err)
	}

	d := PayloadDigest{
		ContentHash:      hashWithDomain(domainDigest, encoded),
		SchemaVersion:    stringField(payload, "schema_version"),
		Fields:           sortedFields(payload),
		ItemCount:        itemCount(payload),
		Latitude:         floatField(payload, "latitude"),
		Longitude:        floatField(payload, "longitude"),
		Municipality:     stringField(payload, "municipality"),
		LocationVerified: boolField(payload, "location_verified"),
	}
	if d.SchemaVersion == "" {
		// Payloads predating schema versioning are treated as version 1.
		d.SchemaVersion = "1"
	}
	return d, nil
}

// sortedFields returns the payload's top-level field names in sorted
// order, giving the payload-shape rule a stable view of what the capture
// actually contained.
func sortedFields(payload map[string]any) []string {
	fields := make([]string, 0, len(payload))
	for k := range payload {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// itemCount returns the length of the payload's "items" array, or zero
// when absent or not an array.
func itemCount(payload map[string]any) int {
	items, ok := payload["items"].([]any)
	if !ok {
		return 0
	}
	return len(items)
}

// stringField returns the named top-level field as a string, or "" when
// absent or not a string.
func stringField(payload map[string]any, name string) string {
	s, _ := payload[name].(string)
	return s
}

// boolField returns the named top-level field as a bool, or false when
// absent or not a bool.
func boolField(payload map[string]any, name string) bool {
	b, _ := payload[name].(bool)
	return b
}

// floatField returns a pointer to the named numeric field, or nil when
// absent or not numeric. JSON numbers decode as float64.
func floatField(payload map[string]any, name string) *float64 {
	f, ok := payload[name].(float64)
	if !ok {
		return nil
	}
	return &f
}
