package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestFromPayload_DerivesFacts(t *testing.T) {
	d, err := DigestFromPayload(map[string]any{
		"schema_version":    "2",
		"items":             []any{map[string]any{"sku": "A"}, map[string]any{"sku": "B"}},
		"total_amount":      250.0,
		"latitude":          14.6,
		"longitude":         121.0,
		"municipality":      "Pasig",
		"location_verified": true,
	})
	require.NoError(t, err)

	assert.Equal(t, "2", d.SchemaVersion)
	assert.Equal(t, 2, d.ItemCount)
	assert.Equal(t, 14.6, *d.Latitude)
	assert.Equal(t, 121.0, *d.Longitude)
	assert.Equal(t, "Pasig", d.Municipality)
	assert.True(t, d.LocationVerified)
	assert.Equal(t, []string{
		"items", "latitude", "location_verified", "longitude",
		"municipality", "schema_version", "total_amount",
	}, d.Fields)
	assert.Len(t, d.ContentHash, 64)
}

func TestDigestFromPayload_DefaultsSchemaVersion(t *testing.T) {
	d, err := DigestFromPayload(map[string]any{"items": []any{}})
	require.NoError(t, err)
	assert.Equal(t, "1", d.SchemaVersion)
	assert.Zero(t, d.ItemCount)
	assert.Nil(t, d.Latitude)
	assert.False(t, d.LocationVerified)
}

func TestDigestFromPayload_HashStableAcrossIterationOrder(t *testing.T) {
	payload := map[string]any{
		"b": 2.0, "a": 1.0, "c": map[string]any{"y": 1.0, "x": 2.0},
	}

	first, err := DigestFromPayload(payload)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := DigestFromPayload(payload)
		require.NoError(t, err)
		assert.Equal(t, first.ContentHash, again.ContentHash)
	}
}

func TestDigestFromPayload_HashChangesWithContent(t *testing.T) {
	a, err := DigestFromPayload(map[string]any{"total_amount": 100.0})
	require.NoError(t, err)
	b, err := DigestFromPayload(map[string]any{"total_amount": 101.0})
	require.NoError(t, err)
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
}
