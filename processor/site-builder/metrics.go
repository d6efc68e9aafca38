package sitebuilder

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error stages reported on semsimilar_document_errors_total.
const (
	stageRead   = "read"
	stageParse  = "parse"
	stageSplice = "splice"
	stageWrite  = "write"
	stagePrune  = "prune"
)

// Metrics holds the build metrics. Each instance owns its registry so tests
// and repeated builds never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	documents  prometheus.Counter
	sections   prometheus.Counter
	candidates prometheus.Counter
	errors     *prometheus.CounterVec
	duration   prometheus.Histogram
	scores     prometheus.Histogram
}

// NewMetrics creates and registers the build metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semsimilar_documents_total",
			Help: "Documents processed by builds.",
		}),
		sections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semsimilar_sections_rendered_total",
			Help: "Similar-document sections spliced into documents.",
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semsimilar_candidates_scored_total",
			Help: "Candidate documents scored.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "semsimilar_document_errors_total",
			Help: "Per-document failures by stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "semsimilar_build_duration_seconds",
			Help:    "Duration of full builds.",
			Buckets: prometheus.DefBuckets,
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "semsimilar_similarity_score",
			Help:    "Distribution of candidate similarity scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	m.registry.MustRegister(m.documents, m.sections, m.candidates, m.errors, m.duration, m.scores)
	return m
}

// ObserveScore records one candidate score.
func (m *Metrics) ObserveScore(score float64) {
	m.candidates.Inc()
	m.scores.Observe(score)
}

func (m *Metrics) documentProcessed() {
	m.documents.Inc()
}

func (m *Metrics) sectionRendered() {
	m.sections.Inc()
}

func (m *Metrics) documentFailed(stage string) {
	m.errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) buildFinished(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

// Registry returns the registry holding the build metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
