package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
	"github.com/kailas-cloud/traffmeter/internal/metrics"
)

// Service is the delta accounting engine. It is stateless across calls:
// all durable state lives in the snapshot store, re-read on every cycle.
// A mutex serializes cycles so two reports never race on the same baseline.
type Service struct {
	mu        sync.Mutex
	ledger    LedgerReader
	snapshots SnapshotStore
	logger    *zap.Logger
}

// New creates the accounting engine.
func New(ledger LedgerReader, snapshots SnapshotStore, logger *zap.Logger) *Service {
	return &Service{ledger: ledger, snapshots: snapshots, logger: logger}
}

// RebaselineReport reads the current ledger totals, replaces the entire
// snapshot set (previous = 0 for every principal, dropping principals the
// ledger no longer reports), and returns the raw totals for display.
// Consumption history is deliberately discarded.
func (s *Service) RebaselineReport(ctx context.Context) ([]domusage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	readings, err := s.ledger.ReadTotals(ctx)
	if err != nil {
		metrics.ReportCyclesTotal.WithLabelValues("rebaseline", "error").Inc()
		return nil, fmt.Errorf("read ledger totals: %w", err)
	}

	if err := s.snapshots.ReplaceAll(ctx, readings); err != nil {
		metrics.ReportCyclesTotal.WithLabelValues("rebaseline", "error").Inc()
		return nil, fmt.Errorf("replace snapshots: %w", err)
	}

	entries := make([]domusage.Entry, len(readings))
	for i, reading := range readings {
		entries[i] = domusage.NewEntry(reading.Principal(), reading.TotalGiB())
	}

	metrics.ReportCyclesTotal.WithLabelValues("rebaseline", "ok").Inc()
	metrics.ReportCycleDuration.WithLabelValues("rebaseline").Observe(time.Since(start).Seconds())
	metrics.PrincipalsReported.Set(float64(len(readings)))

	s.logger.Info("rebaseline cycle complete",
		zap.Int("principals", len(readings)),
		zap.Duration("took", time.Since(start)),
	)

	return entries, nil
}

// ConsumptionReport reads the current ledger totals, computes per-principal
// deltas against the stored baseline, then advances the baseline. The full
// delta set is computed from the old snapshot before any row is written, so
// one cycle always compares against exactly one prior baseline.
//
// A principal whose cumulative total decreased (external counter reset)
// reports 0, never a negative number. If the baseline write fails, the
// computed deltas are not durable and the whole cycle counts as failed;
// a retry recomputes the same deltas against the unadvanced baseline.
func (s *Service) ConsumptionReport(ctx context.Context) ([]domusage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	readings, err := s.ledger.ReadTotals(ctx)
	if err != nil {
		metrics.ReportCyclesTotal.WithLabelValues("consumption", "error").Inc()
		return nil, fmt.Errorf("read ledger totals: %w", err)
	}

	snapshots, err := s.snapshots.GetAll(ctx)
	if err != nil {
		metrics.ReportCyclesTotal.WithLabelValues("consumption", "error").Inc()
		return nil, fmt.Errorf("read snapshots: %w", err)
	}

	entries := make([]domusage.Entry, len(readings))
	for i, reading := range readings {
		// A principal never seen before compares against (0, 0), so its
		// first delta equals its full ledger total.
		baseline := snapshots[reading.Principal()].CurrentGiB()

		delta := reading.TotalGiB() - baseline
		if delta < 0 {
			metrics.ClampedDeltasTotal.Inc()
			s.logger.Warn("negative delta clamped to zero",
				zap.String("principal", reading.Principal()),
				zap.Float64("total_gib", reading.TotalGiB()),
				zap.Float64("baseline_gib", baseline),
			)
			delta = 0
		}
		entries[i] = domusage.NewEntry(reading.Principal(), delta)
	}

	// Raw totals, not deltas, become the new baseline.
	if err := s.snapshots.Upsert(ctx, readings); err != nil {
		metrics.ReportCyclesTotal.WithLabelValues("consumption", "error").Inc()
		return nil, fmt.Errorf("advance baseline: %w", err)
	}

	metrics.ReportCyclesTotal.WithLabelValues("consumption", "ok").Inc()
	metrics.ReportCycleDuration.WithLabelValues("consumption").Observe(time.Since(start).Seconds())
	metrics.PrincipalsReported.Set(float64(len(readings)))

	s.logger.Info("consumption cycle complete",
		zap.Int("principals", len(readings)),
		zap.Duration("took", time.Since(start)),
	)

	return entries, nil
}
