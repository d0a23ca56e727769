package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "incident_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion pipeline.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesRejected *prometheus.CounterVec // labels: reason={malformed,missing_field,invalid_coordinates,unknown}
	RecordsStored    *prometheus.CounterVec // labels: partition={accidents,emergencies}
	StoreErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge
	IngestDuration   prometheus.Histogram

	// Hospital lookup metrics.
	HospitalLookups       *prometheus.CounterVec // labels: outcome={success,empty,error}
	HospitalAPIDuration   prometheus.Histogram
	HospitalLookupEnabled prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessagesRejected,
		m.RecordsStored,
		m.StoreErrors,
		m.PipelineRunning,
		m.IngestDuration,
		m.HospitalLookups,
		m.HospitalAPIDuration,
		m.HospitalLookupEnabled,
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
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the incident channel.",
		}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Messages dropped by validation, by reason.",
		}, []string{"reason"}),
		RecordsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Enriched records written to the store, by partition.",
		}, []string{"partition"}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Record writes that failed and were dropped.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a validate-enrich-persist cycle for one message.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		HospitalLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hospital_lookups_total",
			Help:      "Hospital search requests by outcome.",
		}, []string{"outcome"}),
		HospitalAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hospital_api_duration_seconds",
			Help:      "SerpAPI request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		HospitalLookupEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hospital_lookup_enabled",
			Help:      "1 when hospital enrichment is enabled, 0 otherwise.",
		}),
	}
}
