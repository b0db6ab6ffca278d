package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported by the service, kept apart from
// prometheus.DefaultRegisterer.
var Registry = prometheus.NewRegistry()

var (
	modelRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_model_requests_total",
			Help: "Generation attempts sent to the model backend, by provider and outcome.",
		},
		[]string{"provider", "status"},
	)
	modelLatency = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_model_request_duration_seconds",
			Help:    "Latency of individual generation attempts.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider"},
	)
	modelInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "narrative_model_in_flight",
			Help: "Generation calls currently holding a concurrency slot.",
		},
	)
	modelQueueWait = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "narrative_model_queue_wait_seconds",
			Help:    "Time spent waiting for a concurrency slot.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)
	segmentsGenerated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_segments_total",
			Help: "Segments produced by the narrative engine, by kind (initial/next) and outcome (parsed/fallback).",
		},
		[]string{"kind", "outcome"},
	)
	parseFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "narrative_parse_failures_total",
			Help: "Model responses that did not match the segment grammar.",
		},
	)
	sessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "story_sessions_active",
			Help: "Story sessions currently held in memory.",
		},
	)
	sessionsEnded = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_sessions_ended_total",
			Help: "Sessions removed from memory, by reason (deleted/evicted).",
		},
		[]string{"reason"},
	)
	choicesResolved = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_choices_total",
			Help: "Choice submissions, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveModelRequest records one generation attempt.
func ObserveModelRequest(provider, status string, took time.Duration) {
	modelRequests.WithLabelValues(provider, status).Inc()
	modelLatency.WithLabelValues(provider).Observe(took.Seconds())
}

// ModelSlotAcquired records the queue wait of a call that obtained a slot.
func ModelSlotAcquired(waited time.Duration) {
	modelQueueWait.Observe(waited.Seconds())
	modelInFlight.Inc()
}

// ModelSlotReleased marks a concurrency slot as free again.
func ModelSlotReleased() {
	modelInFlight.Dec()
}

// RecordSegment counts an engine result.
func RecordSegment(kind string, fallback bool) {
	outcome := "parsed"
	if fallback {
		outcome = "fallback"
	}
	segmentsGenerated.WithLabelValues(kind, outcome).Inc()
}

// RecordParseFailure counts a response rejected by the parser.
func RecordParseFailure() {
	parseFailures.Inc()
}

// SessionOpened increments the live session gauge.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed decrements the live session gauge.
func SessionClosed(reason string) {
	sessionsActive.Dec()
	sessionsEnded.WithLabelValues(reason).Inc()
}

// RecordChoice counts a choice submission outcome.
func RecordChoice(outcome string) {
	choicesResolved.WithLabelValues(outcome).Inc()
}
