package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// Calls made to the RAG backend
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdesk",
			Name:      "backend_requests_total",
			Help:      "Total number of requests sent to the RAG backend",
		},
		[]string{"operation", "outcome"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdesk",
			Name:      "backend_request_duration_seconds",
			Help:      "RAG backend request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// Transcript activity
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdesk",
			Name:      "submissions_total",
			Help:      "Total query submissions by outcome",
		},
		[]string{"outcome"},
	)

	RevalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdesk",
			Name:      "revalidations_total",
			Help:      "Total revalidation requests by outcome",
		},
		[]string{"outcome"},
	)

	OpenViews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdesk",
			Name:      "open_views",
			Help:      "Number of open transcript views",
		},
	)

	WatchersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdesk",
			Name:      "watchers_connected",
			Help:      "Number of WebSocket connections watching a view",
		},
	)
)

// ObserveBackend records one backend call.
func ObserveBackend(operation string, err error, elapsed time.Duration) {
	BackendRequestsTotal.WithLabelValues(operation, outcome(err)).Inc()
	BackendRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordSubmission counts a finished query submission.
func RecordSubmission(err error) {
	SubmissionsTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordRevalidation counts a finished revalidation.
func RecordRevalidation(err error) {
	RevalidationsTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
