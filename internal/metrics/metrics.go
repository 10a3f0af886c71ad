package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_estimates_total",
			Help: "Total number of price estimates by outcome",
		},
		[]string{"outcome"},
	)

	EstimateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_estimate_duration_seconds",
			Help:    "Duration of a full price estimate in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests to external services",
		},
		[]string{"service", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "upstream_request_duration_seconds",
			Help: "Duration of requests to external services in seconds",
		},
		[]string{"service"},
	)

	ExtractedPrices = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extracted_prices_total",
			Help: "Total number of price candidates extracted from search results",
		},
	)
)

// ObserveUpstream records one call to an external service. A status of 0
// means the request never got a response.
func ObserveUpstream(service string, status int, started time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequests.WithLabelValues(service, label).Inc()
	UpstreamDuration.WithLabelValues(service).Observe(time.Since(started).Seconds())
}
