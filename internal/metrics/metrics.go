// Package metrics exposes Prometheus collectors for studio activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "artstudio"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeReauth  = "reauth"
)

// Recorder owns the collectors registered for one process.
type Recorder struct {
	registry *prometheus.Registry

	generationCalls    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	framesTotal        *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
}

// New builds a Recorder backed by its own registry, with Go runtime and
// process collectors included.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		generationCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Remote image generation calls, by operation and outcome",
		}, []string{"operation", "outcome"}),
		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of remote image generation calls",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"operation"}),
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames produced, by kind",
		}, []string{"kind"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of extraction, generation batches, and rendering",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage", "outcome"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Session jobs currently running",
		}),
	}
}

// ObserveGeneration records one remote call.
func (r *Recorder) ObserveGeneration(operation, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.generationCalls.WithLabelValues(operation, outcome).Inc()
	r.generationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddFrames counts frames produced of the given kind.
func (r *Recorder) AddFrames(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.framesTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveStage records how long a stage ran.
func (r *Recorder) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

// JobStarted and JobFinished track the active job gauge.
func (r *Recorder) JobStarted() {
	if r != nil {
		r.activeJobs.Inc()
	}
}

func (r *Recorder) JobFinished() {
	if r != nil {
		r.activeJobs.Dec()
	}
}

// Registry exposes the underlying registry for tests and custom handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Outcome maps an error to an outcome label.
func Outcome(err error, reauth bool) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case reauth:
		return OutcomeReauth
	default:
		return OutcomeError
	}
}
