package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reckon/internal/alert"
	"github.com/roach88/reckon/internal/config"
	"github.com/roach88/reckon/internal/recon"
	"github.com/roach88/reckon/internal/slo"
	"github.com/roach88/reckon/internal/store"
	"github.com/roach88/reckon/internal/testutil"
	"github.com/roach88/reckon/internal/zerotrust"
)

// fakeSources implements every collaborator interface over fixed data.
type fakeSources struct {
	raw           []recon.RawTransaction
	authoritative []recon.AuthoritativeRecord
	aggregate     int64
	dims          map[string]string

	rawErr  error
	aggErr  error
	dimsErr error

	// onRawLoad runs inside RawTransactions, used to cancel mid-run.
	onRawLoad func()
}

func (f *fakeSources) RawTransactions(_ context.Context) ([]recon.RawTransaction, error) {
	if f.onRawLoad != nil {
		f.onRawLoad()
	}
	return f.raw, f.rawErr
}

func (f *fakeSources) AuthoritativeRecords(_ context.Context) ([]recon.AuthoritativeRecord, error) {
	return f.authoritative, nil
}

func (f *fakeSources) StampedCount(_ context.Context) (int64, error) {
	return f.aggregate, f.aggErr
}

func (f *fakeSources) Municipalities(_ context.Context) (map[string]string, error) {
	return f.dims, f.dimsErr
}

// recordingNotifier captures delivered transitions.
type recordingNotifier struct {
	delivered []alert.Transition
}

func (n *recordingNotifier) Notify(_ context.Context, tr alert.Transition) error {
	n.delivered = append(n.delivered, tr)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "reckon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, s *store.Store, cfg *config.Config, src *fakeSources, n *recordingNotifier) *Engine {
	t.Helper()
	e := New(Params{
		Store:           s,
		Config:          cfg,
		Ingestion:       src,
		Aggregates:      src,
		StoreDimensions: src,
		Notifier:        n,
		Logger:          slog.New(slog.DiscardHandler),
	})
	e.now = testutil.NewClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), time.Second).Now
	runSeq := 0
	e.newRunID = func() string {
		runSeq++
		return fmt.Sprintf("run-%03d", runSeq)
	}
	return e
}

func cleanPayload() map[string]any {
	return map[string]any{
		"items":        []any{map[string]any{"name": "soap"}},
		"total_amount": 42.50,
		"latitude":     14.5,
		"longitude":    121.0,
		"municipality": "Quezon City",
	}
}

func testSources() *fakeSources {
	ts := func(h int) time.Time { return time.Date(2024, 5, 31, h, 0, 0, 0, time.UTC) }
	return &fakeSources{
		raw: []recon.RawTransaction{
			{RawID: "TX-001", StoreID: "store-a", Payload: cleanPayload()},
			{RawID: "tx002", StoreID: "store-b", Payload: cleanPayload()},
			{RawID: "tx-999", StoreID: "store-a", Payload: cleanPayload()},
		},
		authoritative: []recon.AuthoritativeRecord{
			{AuthoritativeID: "tx001", TransactionTimestamp: ts(9), StoreID: "store-a", Municipality: "Quezon City"},
			{AuthoritativeID: "TX_002", TransactionTimestamp: ts(10), StoreID: "store-b", Municipality: "Quezon City"},
		},
		aggregate: 2,
		dims: map[string]string{
			"store-a": "Quezon City",
			"store-b": "Quezon City",
		},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	s := openTestStore(t)
	src := testSources()
	notifier := &recordingNotifier{}
	e := newTestEngine(t, s, config.Default(), src, notifier)

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-001", result.RunID)
	assert.False(t, result.StoreDimensionsDegraded)
	require.Len(t, result.Records, 3)

	// Records come back in source-raw-ID order regardless of shard merge.
	assert.Equal(t, "TX-001", result.Records[0].SourceRawID)
	assert.Equal(t, "tx-999", result.Records[1].SourceRawID)
	assert.Equal(t, "tx002", result.Records[2].SourceRawID)

	assert.Equal(t, recon.MatchStateMatched, result.Records[0].MatchState)
	assert.Equal(t, recon.MatchStateUnmatched, result.Records[1].MatchState)
	assert.Equal(t, recon.MatchStateMatched, result.Records[2].MatchState)

	// 2 stamped vs aggregate 2.
	assert.True(t, result.Report.Passed)
	assert.Equal(t, int64(2), result.Report.FlatStampedCount)
	assert.Empty(t, result.Violations)

	// The run is committed and readable.
	persisted, err := s.ReadCanonicalRecords(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Len(t, persisted, 3)

	// The lock is released: a second run proceeds.
	_, err = e.Run(context.Background())
	require.NoError(t, err)
}

func TestRun_Deterministic(t *testing.T) {
	notifier := &recordingNotifier{}

	var first, second *RunResult
	for i, target := range []**RunResult{&first, &second} {
		s := openTestStore(t)
		e := newTestEngine(t, s, config.Default(), testSources(), notifier)
		result, err := e.Run(context.Background())
		require.NoError(t, err, "run %d", i)
		*target = result
	}

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Violations, second.Violations)
	assert.Equal(t, first.Statuses, second.Statuses)
	assert.Equal(t, first.Report, second.Report)
}

func TestRun_LockConflict(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AcquireRunLock(context.Background(), "other-run", time.Now()))

	e := newTestEngine(t, s, config.Default(), testSources(), &recordingNotifier{})
	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsRunConflict(err))

	// The conflicting attempt must not have stolen the holder's lock.
	var conflict *store.RunConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "other-run", conflict.HolderRunID)
}

func TestRun_CancelledBeforeCommit(t *testing.T) {
	s := openTestStore(t)
	src := testSources()

	ctx, cancel := context.WithCancel(context.Background())
	src.onRawLoad = cancel // Cancel mid-run, after the lock is held.

	e := newTestEngine(t, s, config.Default(), src, &recordingNotifier{})
	_, err := e.Run(ctx)
	require.Error(t, err)

	// Nothing was published.
	events, err := s.ReadAlertEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)

	// The lock was released despite the cancelled context.
	require.NoError(t, s.AcquireRunLock(context.Background(), "next-run", time.Now()))
}

func TestRun_IngestionErrorIsFatal(t *testing.T) {
	s := openTestStore(t)
	src := testSources()
	src.rawErr = fmt.Errorf("warehouse unreachable")

	e := newTestEngine(t, s, config.Default(), src, &recordingNotifier{})
	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load raw transactions")
}

func TestRun_StoreDimensionDegrade(t *testing.T) {
	s := openTestStore(t)
	src := testSources()
	src.dims = nil
	src.dimsErr = fmt.Errorf("dimension service down")

	e := newTestEngine(t, s, config.Default(), src, &recordingNotifier{})
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.StoreDimensionsDegraded)

	var coverage *slo.Status
	for i := range result.Statuses {
		if result.Statuses[i].Name == "store-coverage" {
			coverage = &result.Statuses[i]
		}
	}
	require.NotNil(t, coverage)
	assert.False(t, coverage.Passed)
	assert.Equal(t, float64(slo.Unavailable), coverage.CurrentValue)
	assert.Contains(t, coverage.Detail, "METRIC_UNAVAILABLE")
}

func TestRun_AlertLifecycleAcrossRuns(t *testing.T) {
	s := openTestStore(t)
	src := testSources()

	// Baseline where every SLO passes: both records matched, parity
	// exact, full store coverage.
	src.raw = src.raw[:2]

	// A payload claiming verification without a municipality trips the
	// critical rule, which fails the no-critical-violations SLO too; the
	// extra unmatched record drags stamped coverage under target.
	bad := cleanPayload()
	bad["municipality"] = ""
	bad["location_verified"] = true
	src.raw = append(src.raw, recon.RawTransaction{
		RawID: "tx-bad", StoreID: "store-a", Payload: bad,
	})

	notifier := &recordingNotifier{}
	e := newTestEngine(t, s, config.Default(), src, notifier)

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first.Violations)
	assert.Equal(t, zerotrust.RuleFalseVerification, first.Violations[0].RuleID)

	created := transitionsByChange(first.Transitions, alert.ChangeCreated)
	require.NotEmpty(t, created)
	deliveredAfterFirst := len(notifier.delivered)
	assert.Equal(t, len(created), deliveredAfterFirst)

	// Same condition next run: repeats, deduplicated, no notifications.
	second, err := e.Run(context.Background())
	require.NoError(t, err)
	repeated := transitionsByChange(second.Transitions, alert.ChangeRepeated)
	require.NotEmpty(t, repeated)
	assert.Equal(t, int64(2), repeated[0].Event.OccurrenceCount)
	assert.Len(t, notifier.delivered, deliveredAfterFirst)

	// Fixed data: everything resolves, history empties.
	src.raw = src.raw[:len(src.raw)-1]
	third, err := e.Run(context.Background())
	require.NoError(t, err)
	resolved := transitionsByChange(third.Transitions, alert.ChangeResolved)
	assert.Len(t, resolved, len(created))

	events, err := s.ReadAlertEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func transitionsByChange(transitions []alert.Transition, change alert.Change) []alert.Transition {
	var out []alert.Transition
	for _, tr := range transitions {
		if tr.Change == change {
			out = append(out, tr)
		}
	}
	return out
}

func TestFanOut(t *testing.T) {
	inputs := make([]int, 100)
	for i := range inputs {
		inputs[i] = i
	}

	results := fanOut(context.Background(), 8, inputs, func(_ context.Context, n int) int {
		return n * 2
	})

	require.Len(t, results, 100)
	for i, got := range results {
		assert.Equal(t, i*2, got)
	}
}

func TestFanOut_Empty(t *testing.T) {
	results := fanOut(context.Background(), 4, nil, func(_ context.Context, n int) int { return n })
	assert.Empty(t, results)
}

func TestShardByStore(t *testing.T) {
	raw := []recon.RawTransaction{
		{RawID: "c", StoreID: "s2"},
		{RawID: "a", StoreID: "s1"},
		{RawID: "b", StoreID: "s1"},
	}
	shards := shardByStore(raw)
	require.Len(t, shards, 2)
	assert.Equal(t, "s1", shards[0].storeID)
	assert.Len(t, shards[0].raw, 2)
	assert.Equal(t, "s2", shards[1].storeID)
}
