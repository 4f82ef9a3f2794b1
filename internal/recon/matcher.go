package recon

import (
	"sort"
)

// Index maps canonical keys to their authoritative candidates. Candidate
// lists are pre-sorted by (transaction timestamp, authoritative ID)
// ascending so multiplicity resolution is a deterministic head pick
// (CP-3).
//
// An Index is immutable after BuildIndex returns and safe for concurrent
// readers, which lets the engine match independent shards in parallel.
type Index struct {
	candidates map[CanonicalKey][]AuthoritativeRecord
}

// BuildIndex groups authoritative records by canonical key.
//
// Records whose native identifier cannot be canonicalized are skipped and
// reported in Diagnostics; the rest of the batch proceeds.
func BuildIndex(authoritative []AuthoritativeRecord) (*Index, Diagnostics) {
	var diag Diagnostics
	idx := &Index{candidates: make(map[CanonicalKey][]AuthoritativeRecord, len(authoritative))}

	for _, rec := range authoritative {
		key, err := Canonicalize(rec.AuthoritativeID)
		if err != nil {
			diag.Skipped = append(diag.Skipped, SkippedRecord{
				Source: "authoritative",
				ID:     rec.AuthoritativeID,
				Code:   ErrCodeInvalidIdentifier,
				Reason: err.Error(),
			})
			continue
		}
		idx.candidates[key] = append(idx.candidates[key], rec)
	}

	// Oldest-wins tie-break order: earliest timestamp first, then
	// authoritative ID ascending so equal timestamps stay total-ordered.
	for key := range idx.candidates {
		group := idx.candidates[key]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].TransactionTimestamp.Equal(group[j].TransactionTimestamp) {
				return group[i].TransactionTimestamp.Before(group[j].TransactionTimestamp)
			}
			return group[i].AuthoritativeID < group[j].AuthoritativeID
		})
	}

	return idx, diag
}

// Match reconciles a single raw transaction against the index.
//
// Multiple raw records are allowed to map to the same authoritative
// record - duplicate captures are a real phenomenon and deduplication is
// a downstream concern.
func (idx *Index) Match(raw RawTransaction) (CanonicalRecord, error) {
	key, err := Canonicalize(raw.RawID)
	if err != nil {
		return CanonicalRecord{}, err
	}

	digest, err := DigestFromPayload(raw.Payload)
	if err != nil {
		return CanonicalRecord{}, err
	}

	rec := CanonicalRecord{
		CanonicalKey:  key,
		SourceRawID:   raw.RawID,
		StoreID:       raw.StoreID,
		PayloadDigest: digest,
	}

	group := idx.candidates[key]
	switch len(group) {
	case 0:
		rec.MatchState = MatchStateUnmatched
	case 1:
		rec.MatchState = MatchStateMatched
		enrich(&rec, group[0])
	default:
		// Oldest authoritative record wins; the group is pre-sorted.
		rec.MatchState = MatchStateAmbiguous
		rec.AltCandidates = len(group) - 1
		enrich(&rec, group[0])
	}

	return rec, nil
}

// Reconcile joins a raw batch to an authoritative batch via canonical
// keys.
//
// Output order follows raw input order; running Reconcile twice on
// identical inputs yields byte-identical records. Raw records with
// malformed identifiers are skipped into Diagnostics, never aborting the
// batch.
func Reconcile(raw []RawTransaction, authoritative []AuthoritativeRecord) ([]CanonicalRecord, Diagnostics) {
	idx, diag := BuildIndex(authoritative)

	records := make([]CanonicalRecord, 0, len(raw))
	for _, tx := range raw {
		rec, err := idx.Match(tx)
		if err != nil {
			code := ErrCodeDigestFailed
			if IsInvalidIdentifier(err) {
				code = ErrCodeInvalidIdentifier
			}
			diag.Skipped = append(diag.Skipped, SkippedRecord{
				Source: "raw",
				ID:     tx.RawID,
				Code:   code,
				Reason: err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}

	return records, diag
}
