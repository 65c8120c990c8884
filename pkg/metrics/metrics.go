// Package metrics exposes pipeline activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/verity/pkg/pipeline"
)

const namespace = "verity"

// Metrics implements pipeline.Observer on a private registry, so several
// instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// VerdictsTotal counts verdicts by decision (approve, revise).
	VerdictsTotal *prometheus.CounterVec

	// FailClosedTotal counts verdicts forced by untrustworthy validator output.
	FailClosedTotal prometheus.Counter

	// StageErrorsTotal counts failed backend calls by stage.
	StageErrorsTotal *prometheus.CounterVec

	// StageDuration measures backend call latency by stage.
	StageDuration *prometheus.HistogramVec
}

var _ pipeline.Observer = (*Metrics)(nil)

// New registers the verity collectors along with the Go and process
// collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		VerdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Validator verdicts by decision",
		}, []string{"decision"}),
		FailClosedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fail_closed_total",
			Help:      "Verdicts forced to the fallback answer because validator output was unusable",
		}),
		StageErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Failed backend calls by pipeline stage",
		}, []string{"stage"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Backend call latency by pipeline stage",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"stage"}),
	}
}

// ObserveStage implements pipeline.Observer.
func (m *Metrics) ObserveStage(stage pipeline.Stage, elapsed time.Duration, err error) {
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		m.StageErrorsTotal.WithLabelValues(string(stage)).Inc()
	}
}

// ObserveVerdict implements pipeline.Observer.
func (m *Metrics) ObserveVerdict(v pipeline.Verdict) {
	m.VerdictsTotal.WithLabelValues(string(v.Decision())).Inc()
	if v.FailedClosed() {
		m.FailClosedTotal.Inc()
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
