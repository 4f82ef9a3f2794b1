// Package store provides SQLite-backed durable storage for
// reconciliation runs.
//
// The store implements an append-only per-run log:
//   - Canonical Records: one per raw transaction, keyed (run_id, source_raw_id)
//   - Parity Reports: one per run
//   - Violations and SLO Statuses: the run's validation outcome
//   - Diagnostics: per-record skips with reasons
//   - Alert Transitions: the run's alert lifecycle changes
//
// No component mutates a prior run's output. The one mutable table is
// alert_events - the persisted alert FSM state keyed by alert identity -
// and it is only ever written under the run lock, inside a run's commit
// transaction.
//
// # Critical Patterns
//
// CP-1: All-or-Nothing Commit
//   - CommitRun writes every run output in one transaction. An aborted
//     run publishes nothing.
//
// CP-2: Run Serialization
//   - run_lock is a single-row table claimed with INSERT ... ON CONFLICT
//     DO NOTHING. A lost claim is a RunConflict, fatal before any write.
//
// CP-3: Deterministic Query Results
//   - Reads order by the natural key (COLLATE BINARY) so identical
//     stores produce identical output across invocations.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
