package report

import (
	"context"

	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
)

// LedgerReader captures a point-in-time cumulative total per principal.
type LedgerReader interface {
	ReadTotals(ctx context.Context) ([]domusage.Reading, error)
}

// SnapshotStore persists the last two observed totals per principal.
type SnapshotStore interface {
	// ReplaceAll atomically discards the whole snapshot set and recreates it
	// from the readings with previous = 0.
	ReplaceAll(ctx context.Context, readings []domusage.Reading) error
	// Upsert shifts current into previous and stores the new total, per
	// principal present in readings; absent principals are untouched.
	Upsert(ctx context.Context, readings []domusage.Reading) error
	// GetAll returns the full snapshot set; empty map when none exist.
	GetAll(ctx context.Context) (map[string]domusage.Snapshot, error)
}
