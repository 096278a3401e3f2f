// Package metrics records problem-report telemetry in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tunnelkit/support/internal/support"
)

const namespace = "support"

// Recorder implements support.Recorder.
type Recorder struct {
	// attempts counts finished attempts.
	// Labels: kind (submit, retry), outcome (success, failed)
	attempts *prometheus.CounterVec

	// failures counts failed attempts by the step that failed.
	// Labels: stage (account, collect, send)
	failures *prometheus.CounterVec

	// collections counts log cache lookups.
	// Labels: result (collected, cached, error)
	collections *prometheus.CounterVec

	duration prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Finished report send attempts",
		}, []string{"kind", "outcome"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_failures_total",
			Help:      "Failed report send attempts by failing step",
		}, []string{"stage"}),
		collections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_collections_total",
			Help:      "Log bundle lookups by result",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Time from LOADING to SUCCESS or FAILED",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// RegisterSessions exposes the number of open sessions as a gauge.
func RegisterSessions(reg prometheus.Registerer, count func() int) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_sessions",
		Help:      "Problem-report sessions currently held in memory",
	}, func() float64 { return float64(count()) })
}

func (r *Recorder) ObserveAttempt(kind support.AttemptKind, outcome support.State, stage support.Stage, d time.Duration) {
	r.attempts.WithLabelValues(string(kind), outcomeLabel(outcome)).Inc()
	if outcome == support.StateFailed {
		if stage == support.StageNone {
			stage = "unknown"
		}
		r.failures.WithLabelValues(string(stage)).Inc()
	}
	r.duration.Observe(d.Seconds())
}

func (r *Recorder) ObserveCollection(result support.CollectionResult) {
	r.collections.WithLabelValues(string(result)).Inc()
}

func outcomeLabel(s support.State) string {
	switch s {
	case support.StateSuccess:
		return "success"
	case support.StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
