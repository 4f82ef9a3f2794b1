package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIngestion(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.json")
	auth := filepath.Join(dir, "auth.json")
	writeFile(t, raw, `[{"raw_id": "TX-1", "store_id": "s1", "payload": {"items": []}}]`)
	writeFile(t, auth, `[{"authoritative_id": "tx1", "transaction_timestamp": "2024-05-31T09:00:00Z", "store_id": "s1"}]`)

	src := fileIngestion{rawPath: raw, authPath: auth}

	txs, err := src.RawTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "TX-1", txs[0].RawID)

	recs, err := src.AuthoritativeRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "tx1", recs[0].AuthoritativeID)
	assert.Equal(t, 2024, recs[0].TransactionTimestamp.Year())
}

func TestFileAggregates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agg.json")
	writeFile(t, path, `{"stamped_count": 1234}`)

	count, err := fileAggregates{path: path}.StampedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1234), count)
}

func TestFileStoreDims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dims.json")
	writeFile(t, path, `{"s1": "Quezon City"}`)

	dims, err := fileStoreDims{path: path}.Municipalities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"s1": "Quezon City"}, dims)
}

func TestReadJSONFile_Errors(t *testing.T) {
	var v map[string]any
	require.Error(t, readJSONFile(filepath.Join(t.TempDir(), "missing.json"), &v))

	bad := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, bad, `{not json`)
	require.Error(t, readJSONFile(bad, &v))
}
