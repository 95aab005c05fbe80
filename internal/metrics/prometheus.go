package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exports journal activity as Prometheus metrics.
type Recorder struct {
	gatherer      prometheus.Gatherer
	pipelineRuns  *prometheus.CounterVec
	matched       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	quoteErrors   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// New registers the journal metrics on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		pipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjournal_pipeline_runs_total",
				Help: "Total number of filter pipeline evaluations",
			},
			[]string{"scope"},
		),
		matched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjournal_pipeline_matched_total",
				Help: "Total number of records kept by filter pipelines",
			},
			[]string{"scope"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjournal_notifications_total",
				Help: "Saved filter notifications by outcome",
			},
			[]string{"outcome"},
		),
		quoteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjournal_quote_errors_total",
				Help: "Quote refresh failures by symbol",
			},
			[]string{"symbol"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tjournal_pipeline_duration_seconds",
				Help:    "Duration of filter pipeline evaluations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
	}
}

// RecordPipeline records one pipeline run over a scope.
func (r *Recorder) RecordPipeline(scope string, matched int, elapsed time.Duration) {
	r.pipelineRuns.WithLabelValues(scope).Inc()
	r.matched.WithLabelValues(scope).Add(float64(matched))
	r.duration.WithLabelValues(scope).Observe(elapsed.Seconds())
}

// RecordNotification records a notification attempt.
func (r *Recorder) RecordNotification(ok bool) {
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	r.notifications.WithLabelValues(outcome).Inc()
}

// RecordQuoteError records a failed quote refresh.
func (r *Recorder) RecordQuoteError(symbol string) {
	r.quoteErrors.WithLabelValues(symbol).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
