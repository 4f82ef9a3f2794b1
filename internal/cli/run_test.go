package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixtures lays out a complete passing input set and returns the
// flag values pointing at it.
func writeFixtures(t *testing.T) (db, raw, auth, agg, dims string) {
	t.Helper()
	dir := t.TempDir()

	db = filepath.Join(dir, "reckon.db")
	raw = filepath.Join(dir, "raw.json")
	auth = filepath.Join(dir, "auth.json")
	agg = filepath.Join(dir, "agg.json")
	dims = filepath.Join(dir, "dims.json")

	writeFile(t, raw, `[
		{"raw_id": "TX-001", "store_id": "store-a", "payload": {"items": [{"name": "soap"}], "total_amount": 10.0, "municipality": "Quezon City", "latitude": 14.5, "longitude": 121.0}},
		{"raw_id": "tx002", "store_id": "store-b", "payload": {"items": [{"name": "shampoo"}], "total_amount": 20.0, "municipality": "Quezon City", "latitude": 14.6, "longitude": 121.1}}
	]`)
	writeFile(t, auth, `[
		{"authoritative_id": "tx001", "transaction_timestamp": "2024-05-31T09:00:00Z", "store_id": "store-a", "municipality": "Quezon City"},
		{"authoritative_id": "TX_002", "transaction_timestamp": "2024-05-31T10:00:00Z", "store_id": "store-b", "municipality": "Quezon City"}
	]`)
	writeFile(t, agg, `{"stamped_count": 2}`)
	writeFile(t, dims, `{"store-a": "Quezon City", "store-b": "Quezon City"}`)

	return db, raw, auth, agg, dims
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunCommand_EndToEnd(t *testing.T) {
	db, raw, auth, agg, dims := writeFixtures(t)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run",
		"--db", db,
		"--raw", raw,
		"--authoritative", auth,
		"--aggregates", agg,
		"--store-dims", dims,
	})

	require.NoError(t, cmd.Execute())

	output := out.String()
	assert.Contains(t, output, "records 2")
	assert.Contains(t, output, "parity PASS")
	assert.Contains(t, output, "violations 0")
}

func TestRunCommand_JSONOutput(t *testing.T) {
	db, raw, auth, agg, dims := writeFixtures(t)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--format", "json", "run",
		"--db", db,
		"--raw", raw,
		"--authoritative", auth,
		"--aggregates", agg,
		"--store-dims", dims,
	})

	require.NoError(t, cmd.Execute())

	var summary map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.NotEmpty(t, summary["run_id"])
	records := summary["records"].(map[string]any)
	assert.Equal(t, float64(2), records["matched"])
}

func TestRunCommand_FailingObjectiveExitsNonzero(t *testing.T) {
	db, raw, auth, agg, dims := writeFixtures(t)

	// Aggregate far off the flat count: parity fails, so does its SLO.
	writeFile(t, agg, `{"stamped_count": 100}`)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run",
		"--db", db,
		"--raw", raw,
		"--authoritative", auth,
		"--aggregates", agg,
		"--store-dims", dims,
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "parity FAIL")
}

func TestRunCommand_MissingInputsIsCommandError(t *testing.T) {
	db, _, _, _, _ := writeFixtures(t)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--db", db})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_UnreadableBatchIsCommandError(t *testing.T) {
	db, _, auth, agg, dims := writeFixtures(t)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run",
		"--db", db,
		"--raw", filepath.Join(t.TempDir(), "missing.json"),
		"--authoritative", auth,
		"--aggregates", agg,
		"--store-dims", dims,
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
