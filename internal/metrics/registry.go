// Package metrics wires the process's Prometheus registry, grounded on the
// teacher's internal/interfaces/http/metrics.go MetricsRegistry: one struct
// owning every metric, built once at startup and threaded into whichever
// component needs to record against it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the service exposes at /metrics.
type Registry struct {
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec

	IngestionRetries    *prometheus.CounterVec
	IngestionBreakerState *prometheus.GaugeVec
	CacheFallbacks      *prometheus.CounterVec

	DataflowsAnalyzed *prometheus.CounterVec
	QualityScore      *prometheus.HistogramVec

	CacheHitRatio prometheus.Gauge
}

// New builds and registers every metric against the default registerer.
func New() *Registry {
	r := &Registry{
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "istat_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "istat_http_requests_total",
				Help: "Total HTTP requests served, by route/method/status",
			},
			[]string{"route", "method", "status"},
		),
		IngestionRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "istat_ingestion_retries_total",
				Help: "Total retry attempts issued by the ingestion client",
			},
			[]string{"host"},
		),
		IngestionBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "istat_ingestion_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
		CacheFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "istat_ingestion_cache_fallbacks_total",
				Help: "Total requests served from the cache_fallback path",
			},
			[]string{"dataset_id"},
		),
		DataflowsAnalyzed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "istat_dataflows_analyzed_total",
				Help: "Total dataflows categorized, by resulting category",
			},
			[]string{"category"},
		),
		QualityScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "istat_quality_score",
				Help:    "Distribution of computed quality scores",
				Buckets: []float64{0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
			},
			[]string{"dataset_id"},
		),
		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "istat_query_cache_hit_ratio",
				Help: "Current analytics query cache hit ratio",
			},
		),
	}

	prometheus.MustRegister(
		r.HTTPRequestDuration,
		r.HTTPRequestsTotal,
		r.IngestionRetries,
		r.IngestionBreakerState,
		r.CacheFallbacks,
		r.DataflowsAnalyzed,
		r.QualityScore,
		r.CacheHitRatio,
	)
	return r
}

// Handler exposes the default Prometheus registry over HTTP.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one completed request's outcome.
func (r *Registry) ObserveHTTPRequest(route, method, status string, seconds float64) {
	r.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(seconds)
	r.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
}

// RecordCacheFallback counts a request served from the ingestion client's
// cache_fallback path.
func (r *Registry) RecordCacheFallback(datasetID string) {
	r.CacheFallbacks.WithLabelValues(datasetID).Inc()
}

// RecordDataflowCategory counts one categorization outcome.
func (r *Registry) RecordDataflowCategory(category string) {
	r.DataflowsAnalyzed.WithLabelValues(category).Inc()
}

// RecordQualityScore records a computed QualityResult.QualityScore.
func (r *Registry) RecordQualityScore(datasetID string, score float64) {
	r.QualityScore.WithLabelValues(datasetID).Observe(score)
}

// SetBreakerState records a circuit breaker's numeric state (0/1/2 for
// closed/half-open/open).
func (r *Registry) SetBreakerState(breaker string, state float64) {
	r.IngestionBreakerState.WithLabelValues(breaker).Set(state)
}
