package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parcel_valuation"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// valuation workflow.
type Metrics struct {
	Resolutions        *prometheus.CounterVec // labels: outcome={matched,unmatched}
	ResolutionDuration prometheus.Histogram
	CandidatesPerPoint prometheus.Histogram
	StaleDiscards      prometheus.Counter
	InFlight           prometheus.Gauge

	// External source metrics.
	SourceRequests *prometheus.CounterVec   // labels: source={geocode,candidates,details}, outcome={success,empty,error}
	SourceDuration *prometheus.HistogramVec // labels: source

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: method={forward,reverse}, result={hit,miss}

	// Record publishing.
	RecordsPublished  prometheus.Counter
	PublishErrors     prometheus.Counter
	PublishQueueDepth prometheus.Gauge
	PublishBatchSize  prometheus.Histogram
	PublisherRunning  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.Resolutions,
		m.ResolutionDuration,
		m.CandidatesPerPoint,
		m.StaleDiscards,
		m.InFlight,
		m.SourceRequests,
		m.SourceDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.RecordsPublished,
		m.PublishErrors,
		m.PublishQueueDepth,
		m.PublishBatchSize,
		m.PublisherRunning,
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
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Completed point resolutions by outcome.",
		}, []string{"outcome"}),
		ResolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "End-to-end duration of one point resolution.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CandidatesPerPoint: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_point",
			Help:      "Parcel candidates returned for a point.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		StaleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_discards_total",
			Help:      "Resolutions discarded because a newer one had started.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolutions_in_flight",
			Help:      "Resolutions currently running.",
		}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "External source calls by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "External source request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Committed resolutions written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Resolutions that could not be queued or written.",
		}),
		PublishQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publish_queue_depth",
			Help:      "Committed resolutions waiting to be written.",
		}),
		PublishBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_batch_size",
			Help:      "Resolutions per Kafka write.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
		PublisherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publisher_running",
			Help:      "Whether the publish loop is running (1 = running, 0 = stopped).",
		}),
	}
}
