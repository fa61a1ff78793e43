// Package metrics exposes Prometheus instruments for scoring and page renders.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers do not
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	predictions      *prometheus.CounterVec
	predictionErrors *prometheus.CounterVec
	pageRender       *prometheus.HistogramVec
	artifactMisses   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartdash_predictions_total",
			Help: "Scored feature vectors by risk label",
		}, []string{"label"}),
		predictionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartdash_prediction_errors_total",
			Help: "Failed scoring requests by error kind",
		}, []string{"kind"}),
		pageRender: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heartdash_page_render_seconds",
			Help:    "Time to build a dashboard page",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"page"}),
		artifactMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartdash_artifact_missing_total",
			Help: "Requests that failed because an artifact was absent",
		}, []string{"page"}),
	}
}

// ObservePrediction counts a successful score.
func (m *Metrics) ObservePrediction(highRisk bool) {
	if m == nil {
		return
	}
	label := "low"
	if highRisk {
		label = "high"
	}
	m.predictions.WithLabelValues(label).Inc()
}

// ObservePredictionError counts a failed score by the kind label the HTTP
// layer assigns (invalid_input, classifier, canceled, ...).
func (m *Metrics) ObservePredictionError(kind string) {
	if m == nil {
		return
	}
	m.predictionErrors.WithLabelValues(kind).Inc()
}

// ObserveArtifactMiss counts a page failing on a missing artifact.
func (m *Metrics) ObserveArtifactMiss(page string) {
	if m == nil {
		return
	}
	m.artifactMisses.WithLabelValues(page).Inc()
}

// TimePage records how long a page took since start.
func (m *Metrics) TimePage(page string, start time.Time) {
	if m == nil {
		return
	}
	m.pageRender.WithLabelValues(page).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
