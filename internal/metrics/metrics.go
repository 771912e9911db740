package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnnotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nerdemo_annotations_total",
			Help: "Annotate calls by outcome (ok, empty_input, inference_error)",
		},
		[]string{"outcome"},
	)

	EntitiesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nerdemo_entities_emitted_total",
			Help: "Entities returned to callers by resolved tag",
		},
		[]string{"tag"},
	)

	EntitiesExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nerdemo_entities_excluded_total",
			Help: "Predictions dropped by the exclusion set, by resolved tag",
		},
		[]string{"tag"},
	)

	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nerdemo_inference_duration_seconds",
			Help:    "Duration of inference calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nerdemo_cache_lookups_total",
			Help: "Prediction cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nerdemo_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
