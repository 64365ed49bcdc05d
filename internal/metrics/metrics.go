package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookfront"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Booking submissions by outcome (succeeded, validation, seat_loss, network, unknown, stale).",
		},
		[]string{"outcome"},
	)

	placementFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_placement_failures_total",
			Help:      "Appointments that could not be placed on the calendar grid.",
		},
		[]string{"reason"},
	)

	eligibilityBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eligibility_blocked_total",
			Help:      "Catalog items shown as not bookable, by reason kind.",
		},
		[]string{"reason"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of calls to catalog, booking and calendar services.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, submissions, placementFailures, eligibilityBlocks, upstreamDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func IncPlacementFailure(reason string) {
	placementFailures.WithLabelValues(reason).Inc()
}

func IncEligibilityBlocked(reason string) {
	eligibilityBlocks.WithLabelValues(reason).Inc()
}

func ObserveUpstream(service, outcome string, d time.Duration) {
	upstreamDuration.WithLabelValues(service, outcome).Observe(d.Seconds())
}
