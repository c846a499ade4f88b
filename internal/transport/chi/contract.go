package chi

import (
	"context"

	domusage "github.com/kailas-cloud/traffmeter/internal/domain/usage"
	healthuc "github.com/kailas-cloud/traffmeter/internal/usecase/health"
)

// Reporter runs accounting cycles.
type Reporter interface {
	ConsumptionReport(ctx context.Context) ([]domusage.Entry, error)
	RebaselineReport(ctx context.Context) ([]domusage.Entry, error)
}

// SnapshotReader exposes the stored baselines read-only.
type SnapshotReader interface {
	GetAll(ctx context.Context) (map[string]domusage.Snapshot, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
