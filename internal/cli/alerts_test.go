package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertsList_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "reckon.db")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"alerts", "list", "--db", db})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "no open alerts")
}

func TestAlertsAck_NoSuchAlert(t *testing.T) {
	db := filepath.Join(t.TempDir(), "reckon.db")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"alerts", "ack", "slo:parity-within-tolerance", "--db", db})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// Full lifecycle: a failing run opens an alert, list shows it, ack
// flips it to acknowledged.
func TestAlerts_ListAndAckAfterFailingRun(t *testing.T) {
	db, raw, auth, agg, dims := writeFixtures(t)
	writeFile(t, agg, `{"stamped_count": 100}`) // parity fails

	runCmd := NewRootCommand()
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetArgs([]string{"run",
		"--db", db, "--raw", raw, "--authoritative", auth,
		"--aggregates", agg, "--store-dims", dims,
	})
	err := runCmd.Execute()
	require.Error(t, err)
	require.Equal(t, ExitFailure, GetExitCode(err))

	listCmd := NewRootCommand()
	var out bytes.Buffer
	listCmd.SetOut(&out)
	listCmd.SetArgs([]string{"alerts", "list", "--db", db})
	require.NoError(t, listCmd.Execute())
	assert.Contains(t, out.String(), "slo:parity-within-tolerance")
	assert.Contains(t, out.String(), "active")

	ackCmd := NewRootCommand()
	out.Reset()
	ackCmd.SetOut(&out)
	ackCmd.SetArgs([]string{"alerts", "ack", "slo:parity-within-tolerance", "--db", db})
	require.NoError(t, ackCmd.Execute())
	assert.Contains(t, out.String(), "acknowledged slo:parity-within-tolerance")

	verifyCmd := NewRootCommand()
	out.Reset()
	verifyCmd.SetOut(&out)
	verifyCmd.SetArgs([]string{"alerts", "list", "--db", db})
	require.NoError(t, verifyCmd.Execute())
	assert.Contains(t, out.String(), "acknowledged")
}
