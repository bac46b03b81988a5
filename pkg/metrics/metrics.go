// Package metrics exposes Prometheus instruments for scoring and calibration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealerai"

// Recorder owns every instrument on its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	stageOutcomes  *prometheus.CounterVec
	runs           *prometheus.CounterVec
	scores         *prometheus.CounterVec
	scoreValue     prometheus.Histogram
	weightVersions *prometheus.CounterVec
	learnerFits    *prometheus.CounterVec
	completeness   *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
}

// New registers all instruments on a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	return &Recorder{
		registry: reg,
		stageDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "stage_duration_seconds",
			Help:      "Duration of calibration loop stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageOutcomes: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "stage_outcomes_total",
			Help:      "Calibration stage outcomes by status",
		}, []string{"stage", "status"}),
		runs: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "runs_total",
			Help:      "Calibration runs by result",
		}, []string{"result"}),
		scores: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "scores_total",
			Help:      "Scoring calls by result",
		}, []string{"result"}),
		scoreValue: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "score_value",
			Help:      "Distribution of final composite scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		weightVersions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "weights",
			Name:      "versions_published_total",
			Help:      "Weight vector versions published by source",
		}, []string{"source"}),
		learnerFits: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "fits_total",
			Help:      "Learner fit attempts by result",
		}, []string{"result"}),
		completeness: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "completeness_ratio",
			Help:      "Aggregate feature completeness of the last ingest",
		}, []string{"tenant"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "method", "code"}),
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveStage records one stage outcome and its duration
func (r *Recorder) ObserveStage(stage, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	r.stageOutcomes.WithLabelValues(stage, status).Inc()
}

// ObserveRun records a finished run (completed, degraded, aborted, already_done)
func (r *Recorder) ObserveRun(result string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(result).Inc()
}

// ObserveScore records a scoring call
func (r *Recorder) ObserveScore(score float64, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.scores.WithLabelValues("error").Inc()
		return
	}
	r.scores.WithLabelValues("ok").Inc()
	r.scoreValue.Observe(score)
}

// ObserveWeightVersion records a published weight vector
func (r *Recorder) ObserveWeightVersion(source string) {
	if r == nil {
		return
	}
	r.weightVersions.WithLabelValues(source).Inc()
}

// ObserveLearnerFit records a fit attempt (ok, insufficient, error)
func (r *Recorder) ObserveLearnerFit(result string) {
	if r == nil {
		return
	}
	r.learnerFits.WithLabelValues(result).Inc()
}

// SetCompleteness records a tenant's last ingest completeness
func (r *Recorder) SetCompleteness(tenant string, v float64) {
	if r == nil {
		return
	}
	r.completeness.WithLabelValues(tenant).Set(v)
}

// ObserveHTTP records one API request
func (r *Recorder) ObserveHTTP(route, method, code string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, code).Inc()
}
