// Package engine orchestrates one reconciliation run end to end:
// load, shard, match, validate, parity, SLO evaluation, alert dispatch,
// commit, notify.
//
// Concurrency model: one run at a time, serialized by the store's run
// lock. Within a run, raw records are sharded by store ID and shards are
// matched and validated in parallel on a fixed-size worker pool; the
// cross-shard stages (parity, SLO, alert dispatch) run single-threaded
// after the barrier. Cancellation before the commit aborts the run with
// nothing published.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/reckon/internal/alert"
	"github.com/roach88/reckon/internal/config"
	"github.com/roach88/reckon/internal/metrics"
	"github.com/roach88/reckon/internal/notify"
	"github.com/roach88/reckon/internal/parity"
	"github.com/roach88/reckon/internal/recon"
	"github.com/roach88/reckon/internal/slo"
	"github.com/roach88/reckon/internal/store"
	"github.com/roach88/reckon/internal/zerotrust"
)

// Params wires an Engine's collaborators. Store, Config, Ingestion and
// Aggregates are required; the rest default sensibly.
type Params struct {
	Store      *store.Store
	Config     *config.Config
	Ingestion  IngestionSource
	Aggregates AggregateSource

	// StoreDimensions may be nil; the run then degrades per the
	// StoreDimensionSource contract.
	StoreDimensions StoreDimensionSource

	// Notifier defaults to a log notifier.
	Notifier notify.Notifier

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine runs reconciliation and validation passes.
type Engine struct {
	store      *store.Store
	cfg        *config.Config
	ingestion  IngestionSource
	aggregates AggregateSource
	storeDims  StoreDimensionSource
	notifier   notify.Notifier
	logger     *slog.Logger

	// Injectable for tests.
	now      func() time.Time
	newRunID func() string
}

// New creates an Engine from Params.
func New(p Params) *Engine {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Engine{
		store:      p.Store,
		cfg:        p.Config,
		ingestion:  p.Ingestion,
		aggregates: p.Aggregates,
		storeDims:  p.StoreDimensions,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
		newRunID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// RunResult is everything one run produced, as committed.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Records     []recon.CanonicalRecord
	Diagnostics recon.Diagnostics
	Report      parity.Report
	Violations  []zerotrust.Violation
	Statuses    []slo.Status
	Transitions []alert.Transition

	// StoreDimensionsDegraded marks a run that proceeded without the
	// store-dimension collaborator.
	StoreDimensionsDegraded bool
}

// shard is one store's slice of the raw batch.
type shard struct {
	storeID string
	raw     []recon.RawTransaction
}

// shardResult is one shard's matched records, skips and violations.
type shardResult struct {
	records    []recon.CanonicalRecord
	skipped    []recon.SkippedRecord
	violations []zerotrust.Violation
}

// Run executes one reconciliation run.
//
// The run lock is claimed first and released on every exit path,
// including cancellation. All outputs land in a single transaction; a
// run that errors or is cancelled before the commit publishes nothing.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	runID := e.newRunID()
	startedAt := e.now()
	logger := e.logger.With("run_id", runID)

	if err := e.store.AcquireRunLock(ctx, runID, startedAt); err != nil {
		if store.IsRunConflict(err) {
			metrics.RunsTotal.WithLabelValues("conflict").Inc()
		} else {
			metrics.RunsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	defer func() {
		// Release must survive a cancelled run context.
		releaseCtx := context.WithoutCancel(ctx)
		if err := e.store.ReleaseRunLock(releaseCtx, runID); err != nil {
			logger.Error("release run lock", "error", err)
		}
	}()

	result, err := e.run(ctx, logger, runID, startedAt)
	if err != nil {
		status := "error"
		if ctx.Err() != nil {
			status = "aborted"
		}
		metrics.RunsTotal.WithLabelValues(status).Inc()
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	return result, nil
}

func (e *Engine) run(ctx context.Context, logger *slog.Logger, runID string, startedAt time.Time) (*RunResult, error) {
	// Load everything up front. Collaborator reads happen before any
	// processing so a dead collaborator fails fast.
	raw, err := e.ingestion.RawTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load raw transactions: %w", err)
	}
	authoritative, err := e.ingestion.AuthoritativeRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load authoritative records: %w", err)
	}
	aggregateCount, err := e.aggregates.StampedCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aggregate stamped count: %w", err)
	}

	var dims map[string]string
	degraded := false
	if e.storeDims != nil {
		dims, err = e.storeDims.Municipalities(ctx)
		if err != nil {
			logger.Warn("store dimension source unavailable, degrading", "error", err)
			dims = nil
		}
	}
	if dims == nil {
		degraded = true
	}

	logger.Info("run started",
		"raw", len(raw), "authoritative", len(authoritative), "store_dims_degraded", degraded)

	// Shard by store and scatter across the pool. The index is built
	// once and read concurrently; each shard matches and validates its
	// own records.
	idx, diag := recon.BuildIndex(authoritative)

	validatorOpts := []zerotrust.Option{
		zerotrust.WithBounds(e.cfg.Geo),
		zerotrust.WithRequiredFields(e.cfg.RequiredFields),
	}
	if dims != nil {
		validatorOpts = append(validatorOpts, zerotrust.WithStoreMunicipalities(dims))
	}
	validator := zerotrust.NewValidator(validatorOpts...)

	shards := shardByStore(raw)
	results := fanOut(ctx, e.cfg.Workers, shards, func(_ context.Context, sh shard) shardResult {
		return processShard(idx, validator, sh)
	})

	// Barrier. An aborted scatter leaves partial results; publish nothing.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run aborted before commit: %w", err)
	}

	var (
		records    []recon.CanonicalRecord
		violations []zerotrust.Violation
	)
	for _, res := range results {
		records = append(records, res.records...)
		violations = append(violations, res.violations...)
		diag.Skipped = append(diag.Skipped, res.skipped...)
	}

	// Shard merge order is nondeterministic relative to input; restore a
	// total order before anything downstream observes the set.
	sort.Slice(records, func(i, j int) bool {
		return records[i].SourceRawID < records[j].SourceRawID
	})
	sort.Slice(diag.Skipped, func(i, j int) bool {
		if diag.Skipped[i].Source != diag.Skipped[j].Source {
			return diag.Skipped[i].Source < diag.Skipped[j].Source
		}
		return diag.Skipped[i].ID < diag.Skipped[j].ID
	})
	zerotrust.SortViolations(violations)

	report := parity.Check(records, aggregateCount, e.cfg.Parity.Tolerance, startedAt)

	statuses := slo.Evaluate(slo.Inputs{
		Report:          report,
		Violations:      violations,
		Records:         records,
		StoreDimensions: dims,
	}, e.cfg.SLOs)

	history, err := e.store.LoadAlertHistory(ctx)
	if err != nil {
		return nil, err
	}

	finishedAt := e.now()
	transitions := alert.Dispatch(finishedAt, statuses, violations, history)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run aborted before commit: %w", err)
	}

	if err := e.store.CommitRun(ctx, store.RunRecord{
		RunID:       runID,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Records:     records,
		Diagnostics: diag,
		Report:      report,
		Violations:  violations,
		Statuses:    statuses,
		Transitions: transitions,
	}); err != nil {
		return nil, err
	}

	// Notifications go out only after the commit so they never describe
	// unpersisted state. Delivery failures lose this transition's
	// notification, not the run.
	for _, tr := range transitions {
		if !tr.Notifiable() {
			continue
		}
		if err := e.notifier.Notify(ctx, tr); err != nil {
			logger.Error("notify alert transition", "key", tr.Event.Key, "error", err)
		}
	}

	e.recordMetrics(records, diag, violations, report, statuses, history, transitions)

	logger.Info("run committed",
		"records", len(records),
		"skipped", len(diag.Skipped),
		"violations", len(violations),
		"parity_passed", report.Passed,
		"transitions", len(transitions),
	)

	return &RunResult{
		RunID:                   runID,
		StartedAt:               startedAt,
		FinishedAt:              finishedAt,
		Records:                 records,
		Diagnostics:             diag,
		Report:                  report,
		Violations:              violations,
		Statuses:                statuses,
		Transitions:             transitions,
		StoreDimensionsDegraded: degraded,
	}, nil
}

// shardByStore splits the raw batch into per-store shards, ordered by
// store ID so the scatter is reproducible.
func shardByStore(raw []recon.RawTransaction) []shard {
	byStore := make(map[string][]recon.RawTransaction)
	for _, tx := range raw {
		byStore[tx.StoreID] = append(byStore[tx.StoreID], tx)
	}

	storeIDs := make([]string, 0, len(byStore))
	for id := range byStore {
		storeIDs = append(storeIDs, id)
	}
	sort.Strings(storeIDs)

	shards := make([]shard, 0, len(storeIDs))
	for _, id := range storeIDs {
		shards = append(shards, shard{storeID: id, raw: byStore[id]})
	}
	return shards
}

// processShard matches and validates one store's records. Pure over its
// inputs; the index and validator are read-only.
func processShard(idx *recon.Index, validator *zerotrust.Validator, sh shard) shardResult {
	var res shardResult
	for _, tx := range sh.raw {
		rec, err := idx.Match(tx)
		if err != nil {
			code := recon.ErrCodeDigestFailed
			if recon.IsInvalidIdentifier(err) {
				code = recon.ErrCodeInvalidIdentifier
			}
			res.skipped = append(res.skipped, recon.SkippedRecord{
				Source: "raw",
				ID:     tx.RawID,
				Code:   code,
				Reason: err.Error(),
			})
			continue
		}
		res.records = append(res.records, rec)
	}
	res.violations = validator.Validate(res.records)
	return res
}

func (e *Engine) recordMetrics(
	records []recon.CanonicalRecord,
	diag recon.Diagnostics,
	violations []zerotrust.Violation,
	report parity.Report,
	statuses []slo.Status,
	history map[string]alert.Event,
	transitions []alert.Transition,
) {
	for _, rec := range records {
		metrics.RecordsReconciled.WithLabelValues(string(rec.MatchState)).Inc()
	}
	metrics.RecordsSkipped.Add(float64(len(diag.Skipped)))
	for _, viol := range violations {
		metrics.ViolationsDetected.WithLabelValues(viol.RuleID).Inc()
	}
	metrics.ParityDeviation.Set(report.RelativeDeviation)

	var failing int
	for _, status := range statuses {
		if !status.Passed {
			failing++
		}
	}
	metrics.SLOFailing.Set(float64(failing))

	// Fold this run's transitions over the pre-run history to count what
	// is open now, without another store read.
	open := make(map[string]bool, len(history))
	for key := range history {
		open[key] = true
	}
	for _, tr := range transitions {
		if tr.Event.State == alert.StateClear {
			delete(open, tr.Event.Key)
		} else {
			open[tr.Event.Key] = true
		}
	}
	metrics.AlertsOpen.Set(float64(len(open)))
}
