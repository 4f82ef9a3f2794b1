package engine

import (
	"context"

	"github.com/roach88/reckon/internal/recon"
)

// IngestionSource supplies the raw capture batch and the authoritative
// sales batch for one run. Both loads are fatal on error: without either
// side there is nothing to reconcile.
type IngestionSource interface {
	RawTransactions(ctx context.Context) ([]recon.RawTransaction, error)
	AuthoritativeRecords(ctx context.Context) ([]recon.AuthoritativeRecord, error)
}

// AggregateSource supplies the independently derived stamped-transaction
// count the parity check compares against. Its derivation path must not
// share code with the flat count or the check proves nothing.
type AggregateSource interface {
	StampedCount(ctx context.Context) (int64, error)
}

// StoreDimensionSource supplies the store-to-municipality dimension map.
// Optional: when absent or failing, the run degrades - the
// municipality-consistency rule is skipped and the store-coverage SLO
// reports unavailable - instead of aborting.
type StoreDimensionSource interface {
	Municipalities(ctx context.Context) (map[string]string, error)
}
