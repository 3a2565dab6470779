package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Posting metrics
	PostingsAccepted   prometheus.Counter
	PostingsDuplicate  prometheus.Counter
	PostingsRejected   *prometheus.CounterVec
	SubmissionDuration prometheus.Histogram

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBErrors *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics against a specific registerer, which keeps
// tests free of the default registry's duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PostingsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "postings_accepted_total",
			Help: "Total number of new postings accepted",
		}),
		PostingsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "postings_duplicate_total",
			Help: "Total number of submissions resolved to an existing posting",
		}),
		PostingsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postings_rejected_total",
			Help: "Total number of rejected submissions by reason",
		}, []string{"reason"}),
		SubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "postings_submission_duration_seconds",
			Help:    "Submission pipeline duration",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postings_cache_hits_total",
			Help: "Cache hits by entity kind",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postings_cache_misses_total",
			Help: "Cache misses by entity kind",
		}, []string{"kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postings_http_requests_total",
			Help: "HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postings_http_request_duration_seconds",
			Help:    "HTTP request duration by method and path",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		DBErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postings_db_errors_total",
			Help: "Database errors by kind",
		}, []string{"kind"}),
	}
}
