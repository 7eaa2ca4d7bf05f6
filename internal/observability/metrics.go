package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rain_import"

// Metrics holds the Prometheus counters, histograms, and gauges for the import service.
type Metrics struct {
	// Queue metrics.
	JobsEnqueued  *prometheus.CounterVec // labels: source={discovery,manual,backfill}
	DuplicateJobs prometheus.Counter
	JobsClaimed   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec // labels: outcome={retry,terminal}
	JobsReclaimed prometheus.Counter
	LeasesLost    prometheus.Counter

	// Import metrics.
	WorkersRunning     prometheus.Gauge
	ImportDuration     prometheus.Histogram
	ReadingsImported   prometheus.Counter
	RowErrors          *prometheus.CounterVec // labels: document={workbook,pdf,metadata}
	ValidationWarnings prometheus.Counter
	SourceConflicts    prometheus.Counter

	// Download metrics.
	Downloads        *prometheus.CounterVec // labels: outcome={success,not_found,network,timeout}
	DownloadDuration prometheus.Histogram
	DownloadCache    *prometheus.CounterVec // labels: result={hit,miss}
	ArchiveErrors    prometheus.Counter

	// Event metrics.
	DiscoveryEvents *prometheus.CounterVec // labels: outcome={enqueued,duplicate,invalid,error}
	EventsPublished *prometheus.CounterVec // labels: type={import.completed,import.failed}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.JobsEnqueued,
		m.DuplicateJobs,
		m.JobsClaimed,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsReclaimed,
		m.LeasesLost,
		m.WorkersRunning,
		m.ImportDuration,
		m.ReadingsImported,
		m.RowErrors,
		m.ValidationWarnings,
		m.SourceConflicts,
		m.Downloads,
		m.DownloadDuration,
		m.DownloadCache,
		m.ArchiveErrors,
		m.DiscoveryEvents,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Import jobs created, by originating source.",
		}, []string{"source"}),
		DuplicateJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_duplicate_total",
			Help:      "Enqueue attempts rejected because the station already had an active job.",
		}),
		JobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_claimed_total",
			Help:      "Import jobs claimed by a worker.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Import jobs completed successfully.",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Failed import attempts, by whether a retry was scheduled.",
		}, []string{"outcome"}),
		JobsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reclaimed_total",
			Help:      "In-progress jobs failed after their worker lease expired.",
		}),
		LeasesLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leases_lost_total",
			Help:      "Import outcomes discarded because the job was reclaimed before the worker finished.",
		}),
		WorkersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_running",
			Help:      "Number of import workers currently polling.",
		}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Duration of a full station import.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ReadingsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_imported_total",
			Help:      "Canonical readings written to the repository.",
		}),
		RowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_errors_total",
			Help:      "Row-scoped parse errors skipped, by document kind.",
		}, []string{"document"}),
		ValidationWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_warnings_total",
			Help:      "Out-of-range metadata fields flagged during import.",
		}),
		SourceConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_conflicts_total",
			Help:      "Station-days reported by more than one source document.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Document downloads, by outcome.",
		}, []string{"outcome"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Document download duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DownloadCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_cache_total",
			Help:      "Document cache lookups, by result.",
		}, []string{"result"}),
		ArchiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Documents that could not be copied to the archive bucket.",
		}),
		DiscoveryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_events_total",
			Help:      "Gauge discovery events consumed, by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Import outcome events published, by type.",
		}, []string{"type"}),
	}
}
