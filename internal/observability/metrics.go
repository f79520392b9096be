package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotspot_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the hotspot pipeline.
type Metrics struct {
	// Fetch metrics.
	SlotsFetched  *prometheus.CounterVec // labels: kind={daily,10min}, outcome={fetched,cached,missing,failed}
	FetchRetries  prometheus.Counter
	FetchDuration *prometheus.HistogramVec // labels: kind

	// Transform metrics.
	RowsNormalized    prometheus.Counter
	RowsDropped       prometheus.Counter
	RecordsClassified *prometheus.CounterVec // labels: risk={Low,Medium,High,Critical}
	BiomeCache        *prometheus.CounterVec // labels: result={hit,miss}

	// Window and refresh metrics.
	WindowRecords    prometheus.Gauge
	WindowSlots      prometheus.Gauge
	WindowEvictions  prometheus.Counter
	WindowDuplicates prometheus.Counter
	RecordsPublished prometheus.Counter
	RefreshDuration  prometheus.Histogram
	MonitorRunning   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.SlotsFetched,
		m.FetchRetries,
		m.FetchDuration,
		m.RowsNormalized,
		m.RowsDropped,
		m.RecordsClassified,
		m.BiomeCache,
		m.WindowRecords,
		m.WindowSlots,
		m.WindowEvictions,
		m.WindowDuplicates,
		m.RecordsPublished,
		m.RefreshDuration,
		m.MonitorRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		SlotsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_fetched_total",
			Help:      help("Feed slots resolved by kind and outcome."),
		}, []string{"kind", "outcome"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      help("Retries after transient fetch failures."),
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      help("Duration of a single feed download attempt."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		RowsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_normalized_total",
			Help:      help("CSV rows converted into hotspot records."),
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      help("Malformed CSV rows skipped during normalization."),
		}),
		RecordsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_classified_total",
			Help:      help("Hotspot records classified by risk level."),
		}, []string{"risk"}),
		BiomeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "biome_cache_total",
			Help:      help("Biome lookup cache results."),
		}, []string{"result"}),
		WindowRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_records",
			Help:      help("Deduplicated records currently retained in the monitoring window."),
		}),
		WindowSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_slots",
			Help:      help("Feed slots currently retained in the monitoring window."),
		}),
		WindowEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_evicted_records_total",
			Help:      help("Records evicted from the monitoring window for age."),
		}),
		WindowDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_duplicates_total",
			Help:      help("Incoming records collapsed onto an existing identity key."),
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      help("Classified records written to the Kafka sink."),
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      help("Duration of a complete monitoring refresh."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		MonitorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_running",
			Help:      help("1 when the monitor loop is active, 0 when shut down."),
		}),
	}
}
