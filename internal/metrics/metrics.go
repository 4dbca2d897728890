// Package metrics exposes prometheus counters for the watcher and ingest
// pipeline on a private registry.
package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Submission outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Recorder owns a registry and the collectors registered on it. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	submissions   *prometheus.CounterVec
	retries       *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	passes        *prometheus.CounterVec
	scansIngested prometheus.Counter
	waiting       prometheus.Gauge
	state         *prometheus.GaugeVec
}

// New builds a Recorder with fresh collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scingest_submissions_total",
				Help: "Catalog submissions by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scingest_submission_retries_total",
				Help: "Retried catalog requests by model",
			},
			[]string{"model"},
		),
		requestTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scingest_request_duration_seconds",
				Help:    "Catalog request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scingest_passes_total",
				Help: "Ingest passes by result",
			},
			[]string{"result"}, // completed | aborted
		),
		scansIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scingest_scans_ingested_total",
			Help: "Scans appended to the ingestion ledger",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scingest_waiting_scans",
			Help: "Scans listed in the index but not yet ingested",
		}),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scingest_watcher_state",
				Help: "1 for the watcher's current state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
	r.registry.MustRegister(
		r.submissions, r.retries, r.requestTime,
		r.passes, r.scansIngested, r.waiting, r.state,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveSubmission records the final outcome of one model submission.
func (r *Recorder) ObserveSubmission(model, outcome string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(model, outcome).Inc()
}

// ObserveRetry counts one additional attempt against model.
func (r *Recorder) ObserveRetry(model string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(model).Inc()
}

// ObserveRequest records the latency of a single HTTP attempt.
func (r *Recorder) ObserveRequest(model string, seconds float64) {
	if r == nil {
		return
	}
	r.requestTime.WithLabelValues(model).Observe(seconds)
}

// ObservePass records a finished ingest pass.
func (r *Recorder) ObservePass(result string) {
	if r == nil {
		return
	}
	r.passes.WithLabelValues(result).Inc()
}

// ScanIngested counts a ledger append.
func (r *Recorder) ScanIngested() {
	if r == nil {
		return
	}
	r.scansIngested.Inc()
}

// SetWaiting reports the size of the waiting set.
func (r *Recorder) SetWaiting(n int) {
	if r == nil {
		return
	}
	r.waiting.Set(float64(n))
}

// SetState marks state as current among states.
func (r *Recorder) SetState(state string, states []string) {
	if r == nil {
		return
	}
	for _, s := range states {
		value := 0.0
		if s == state {
			value = 1
		}
		r.state.WithLabelValues(s).Set(value)
	}
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WritePrometheus writes the text exposition of every collector to w.
func (r *Recorder) WritePrometheus(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
