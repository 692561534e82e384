package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gas_monitor"

// Metrics holds the Prometheus counters, histograms, and gauges for the monitor.
type Metrics struct {
	// Ingestion metrics.
	ReadingsIngested prometheus.Counter
	ReadingsRejected prometheus.Counter
	PipelineRunning  prometheus.Gauge
	BatchSize        prometheus.Histogram

	// Detection metrics.
	ScansTotal     prometheus.Counter
	ScanDuration   prometheus.Histogram
	ZoneScanErrors prometheus.Counter

	// Alert lifecycle metrics.
	AlertsCreated  *prometheus.CounterVec // labels: severity={low,medium,high,critical}
	AlertsResolved prometheus.Counter
	ActiveAlerts   prometheus.Gauge

	// Notification metrics.
	NotificationsFailed *prometheus.CounterVec // labels: subscriber
}

// NewMetrics creates and registers all monitor metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ReadingsIngested,
		m.ReadingsRejected,
		m.PipelineRunning,
		m.BatchSize,
		m.ScansTotal,
		m.ScanDuration,
		m.ZoneScanErrors,
		m.AlertsCreated,
		m.AlertsResolved,
		m.ActiveAlerts,
		m.NotificationsFailed,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Total zone readings accepted into the store.",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Total readings rejected at the ingestion boundary.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the readings pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of reading messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total leak detection scans.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of a complete leak detection scan.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ZoneScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_scan_errors_total",
			Help:      "Per-zone failures isolated during detection scans.",
		}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Leak alerts created by severity.",
		}, []string{"severity"}),
		AlertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Leak alerts resolved.",
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Unresolved leak alerts after the last mutation.",
		}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Alert notifications a subscriber failed to handle.",
		}, []string{"subscriber"}),
	}
}
