package metrics

import "github.com/prometheus/client_golang/prometheus"

// Accounting cycle Prometheus metrics.
var (
	ReportCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traffmeter",
			Name:      "report_cycles_total",
			Help:      "Total number of accounting cycles",
		},
		[]string{"operation", "status"},
	)

	ReportCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "traffmeter",
			Name:      "report_cycle_duration_seconds",
			Help:      "Accounting cycle duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// ClampedDeltasTotal counts deltas clamped to zero because a principal's
	// cumulative total decreased between cycles (external counter reset).
	ClampedDeltasTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traffmeter",
			Name:      "clamped_deltas_total",
			Help:      "Deltas clamped to zero due to non-monotonic ledger readings",
		},
	)

	PrincipalsReported = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "traffmeter",
			Name:      "principals_reported",
			Help:      "Principals present in the most recent ledger reading",
		},
	)
)

var reportMetricsRegistered bool

// RegisterReportMetrics registers accounting metrics. Must be called once from main.
func RegisterReportMetrics() {
	if reportMetricsRegistered {
		return
	}
	prometheus.MustRegister(ReportCyclesTotal)
	prometheus.MustRegister(ReportCycleDuration)
	prometheus.MustRegister(ClampedDeltasTotal)
	prometheus.MustRegister(PrincipalsReported)
	reportMetricsRegistered = true
}
