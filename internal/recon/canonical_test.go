package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_StripsCaseAndPunctuation(t *testing.T) {
	testCases := []struct {
		name     string
		nativeID string
		want     CanonicalKey
	}{
		{"uppercase with dash", "TX-001", "tx001"},
		{"lowercase no separator", "tx001", "tx001"},
		{"underscores", "tx_001", "tx001"},
		{"mixed separators", "TX--_001", "tx001"},
		{"dots and spaces", "tx .001", "tx001"},
		{"already canonical", "abc123", "abc123"},
		{"display form", "ABC-123", "abc123"},
		{"unicode fullwidth digits", "tx００１", "tx001"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := Canonicalize(tc.nativeID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, key)
		})
	}
}

func TestCanonicalize_SameKeyForCaseAndSeparatorVariants(t *testing.T) {
	// The single most important correctness property of the engine:
	// identifiers that differ only in case or separators must collide.
	variants := []string{"TX-001", "tx001", "Tx_001", "tx-0-0-1", "TX 001"}

	first, err := Canonicalize(variants[0])
	require.NoError(t, err)

	for _, v := range variants[1:] {
		key, err := Canonicalize(v)
		require.NoError(t, err)
		assert.Equal(t, first, key, "variant %q should normalize to %q", v, first)
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	key, err := Canonicalize("ABC-123")
	require.NoError(t, err)

	again, err := Canonicalize(string(key))
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestCanonicalize_InvalidIdentifiers(t *testing.T) {
	testCases := []struct {
		name     string
		nativeID string
	}{
		{"empty", ""},
		{"only punctuation", "---"},
		{"only whitespace", "   "},
		{"only symbols", "@#$%"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Canonicalize(tc.nativeID)
			require.Error(t, err)
			assert.True(t, IsInvalidIdentifier(err))
		})
	}
}
