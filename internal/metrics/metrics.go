// Package metrics exposes Prometheus metrics about git command runs.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deixis/gitcmd/internal/actor"
)

// Outcome labels for gitcmd_runs_total.
const (
	OutcomeSuccess = "success" // exit code 0
	OutcomeFailure = "failure" // git exited non-zero
	OutcomeError   = "error"   // validation, spawn or timeout error
)

// Metrics holds the run collectors. Each instance owns its registry so
// tests and multiple hosts never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	runs        *prometheus.CounterVec
	abandoned   prometheus.Counter
	duration    prometheus.Histogram
	outputBytes *prometheus.CounterVec
}

// New creates and registers the run collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitcmd_runs_total",
				Help: "Finished git command runs by outcome",
			},
			[]string{"outcome"},
		),
		abandoned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gitcmd_runs_abandoned_total",
				Help: "Runs the host stopped waiting for before a result arrived",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gitcmd_run_duration_seconds",
				Help:    "Execution time reported in run results",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8), // 5ms .. ~82s
			},
		),
		outputBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitcmd_output_bytes_total",
				Help: "Captured output bytes by stream",
			},
			[]string{"stream"},
		),
	}
	m.Registry.MustRegister(m.runs, m.abandoned, m.duration, m.outputBytes)
	return m
}

// Outcome classifies a result for the outcome label.
func Outcome(r actor.Result) string {
	switch {
	case r.Success:
		return OutcomeSuccess
	case r.Error != nil:
		return OutcomeError
	default:
		return OutcomeFailure
	}
}

// ObserveResult records a finished run. A nil receiver is a no-op.
func (m *Metrics) ObserveResult(r actor.Result) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(Outcome(r)).Inc()
	if r.ExecutionTimeMs != nil {
		m.duration.Observe(float64(*r.ExecutionTimeMs) / 1000)
	}
	m.outputBytes.WithLabelValues("stdout").Add(float64(len(r.Stdout)))
	m.outputBytes.WithLabelValues("stderr").Add(float64(len(r.Stderr)))
}

// ObserveAbandoned records a run that produced no result. A nil receiver
// is a no-op.
func (m *Metrics) ObserveAbandoned() {
	if m == nil {
		return
	}
	m.abandoned.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Mount registers /metrics and /healthz on mux.
func (m *Metrics) Mount(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", healthHandler)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
