// Package recon implements canonical transaction reconciliation: it joins
// raw device-captured transaction payloads to authoritative sales records
// via normalized canonical keys and recovers trusted timestamps.
//
// # Critical Patterns
//
// CP-1: Symmetric Canonicalization
//   - Canonicalize is applied to BOTH raw and authoritative identifiers
//     before any comparison. Any asymmetry silently drops matches.
//
// CP-2: Authoritative Time Only
//   - ResolvedTimestamp comes from the authoritative record or stays nil.
//     It is never inferred from the raw payload.
//
// CP-3: Deterministic Multiplicity Resolution
//   - When several authoritative records collide on a canonical key, the
//     earliest transaction timestamp wins; ties break by authoritative ID
//     ascending. Replays produce byte-identical output.
//
// All transformation functions are pure: given fixed inputs they produce
// fixed outputs and perform no I/O. Persistence lives in internal/store.
package recon
