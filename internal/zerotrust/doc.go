// Package zerotrust enforces structural and geographic invariants over
// canonical records: derived claims are verified against underlying
// evidence instead of being accepted because an upstream flag says so.
//
// Every rule scans the full record set independently each run; violations
// are re-derived, never accumulated, so a fixed record produces zero
// violations on the next run (self-healing detection). Rules are
// order-independent pure functions, which lets the engine run them across
// record shards in parallel.
package zerotrust
