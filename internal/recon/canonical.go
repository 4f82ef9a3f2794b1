package recon

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CanonicalKey is a normalized identifier used to match records across the
// raw and authoritative datasets. Two identifiers that differ only in case
// or separator characters normalize to the same key.
type CanonicalKey string

// Canonicalize derives the canonical key for a native identifier.
//
// The normalization is:
//  1. NFKC normalize (compatibility forms collapse, e.g. fullwidth digits)
//  2. lowercase
//  3. strip every non-alphanumeric rune
//
// CRITICAL (CP-1): this function must be applied identically to both raw
// and authoritative identifiers before any comparison. It is a pure
// function with no side effects.
//
// Returns InvalidIdentifierError when the input is empty or contains no
// alphanumeric characters.
func Canonicalize(nativeID string) (CanonicalKey, error) {
	if nativeID == "" {
		return "", &InvalidIdentifierError{NativeID: nativeID, Reason: "empty identifier"}
	}

	normalized := norm.NFKC.String(nativeID)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range strings.ToLower(normalized) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "", &InvalidIdentifierError{NativeID: nativeID, Reason: "no alphanumeric characters"}
	}

	return CanonicalKey(b.String()), nil
}
