package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// batch pipeline.
type Metrics struct {
	FilesProcessed prometheus.Counter
	FileFailures   prometheus.Counter
	BatchRunning   prometheus.Gauge

	RowsRead         prometheus.Counter
	Findings         *prometheus.CounterVec // label: kind (validation finding taxonomy)
	AnomaliesWritten prometheus.Counter
	MajorEvents      prometheus.Counter
	RegionalMeans    prometheus.Counter

	Decompositions *prometheus.CounterVec // label: outcome={decomposed,fallback,short,empty}
	GapReports     prometheus.Counter

	FileDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesProcessed,
		m.FileFailures,
		m.BatchRunning,
		m.RowsRead,
		m.Findings,
		m.AnomaliesWritten,
		m.MajorEvents,
		m.RegionalMeans,
		m.Decompositions,
		m.GapReports,
		m.FileDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "files_processed_total",
			Help:      "Source files processed to completion.",
		}),
		FileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "file_failures_total",
			Help:      "Source files that failed and produced a critical-error artifact.",
		}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aqi_etl",
			Name:      "batch_running",
			Help:      "1 while a batch stage is active, 0 otherwise.",
		}),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "rows_read_total",
			Help:      "Raw observation rows read from source files.",
		}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "findings_total",
			Help:      "Validation findings recorded, by kind.",
		}, []string{"kind"}),
		AnomaliesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "anomalies_written_total",
			Help:      "Anomaly records written to output CSVs.",
		}),
		MajorEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "major_events_total",
			Help:      "Hours with no data from any station in the network.",
		}),
		RegionalMeans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "regional_means_total",
			Help:      "Regional-average records written.",
		}),
		Decompositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "decompositions_total",
			Help:      "Per-series deseasonalization outcomes.",
		}, []string{"outcome"}),
		GapReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "gap_reports_total",
			Help:      "Missing runs longer than the tolerance.",
		}),
		FileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aqi_etl",
			Name:      "file_duration_seconds",
			Help:      "Wall time to process one source file.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
