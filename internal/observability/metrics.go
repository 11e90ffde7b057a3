// Package observability wires up Prometheus metrics and OpenTelemetry
// tracing for the search pipeline (SPEC_FULL.md's ambient Observability
// section).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the engine exports, grouped the
// way the teacher's worker-pool metrics are: one struct, one constructor,
// registered on creation via promauto.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	A2APeersFannedOut prometheus.Histogram
	A2ATriggeredTotal prometheus.Counter
	ResultsReturned prometheus.Histogram
	QualityScore    prometheus.Histogram
	LLMCallsTotal   *prometheus.CounterVec
}

// NewMetrics registers and returns the engine's metric set against reg. Pass
// prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legalengine",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of search requests, by terminal status.",
		}, []string{"status"}), // status: complete, no_results, error

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "legalengine",
			Subsystem: "search",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each search pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}), // stage: routing, node_embedding, relation_embedding, expansion, a2a, synthesis

		A2APeersFannedOut: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "legalengine",
			Subsystem: "a2a",
			Name:      "peers_fanned_out",
			Help:      "Number of peer domains collaborated with per A2A round.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		}),

		A2ATriggeredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "legalengine",
			Subsystem: "a2a",
			Name:      "triggered_total",
			Help:      "Total number of searches that triggered A2A collaboration.",
		}),

		ResultsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "legalengine",
			Subsystem: "search",
			Name:      "results_returned",
			Help:      "Number of results returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),

		QualityScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "legalengine",
			Subsystem: "search",
			Name:      "quality_score",
			Help:      "Quality gate score computed for the primary domain's results.",
			Buckets:   []float64{0, 0.2, 0.4, 0.5, 0.6, 0.8, 1},
		}),

		LLMCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legalengine",
			Subsystem: "embedding",
			Name:      "llm_calls_total",
			Help:      "Total number of LLM calls, by purpose.",
		}, []string{"purpose"}), // purpose: domain_assessment, collaboration_decision, synthesis
	}
}
