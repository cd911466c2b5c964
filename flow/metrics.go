package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records flow outcomes. A nil *Metrics records nothing.
type Metrics struct {
	initiations *prometheus.CounterVec
	callbacks   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signin",
			Name:      "initiations_total",
			Help:      "Sign-in initiations by provider and result.",
		}, []string{"provider", "result"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signin",
			Name:      "callbacks_total",
			Help:      "Completed callbacks by provider and outcome.",
		}, []string{"provider", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signin",
			Name:      "callback_failures_total",
			Help:      "Failed callbacks by provider and failure kind.",
		}, []string{"provider", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "signin",
			Name:      "callback_duration_seconds",
			Help:      "Callback handling time including provider calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
	}
	if reg != nil {
		reg.MustRegister(m.initiations, m.callbacks, m.failures, m.duration)
	}
	return m
}

func (m *Metrics) initiated(provider, result string) {
	if m == nil {
		return
	}
	m.initiations.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) completed(provider, outcome string, kind Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(provider, outcome).Inc()
	if kind != 0 {
		m.failures.WithLabelValues(provider, kind.String()).Inc()
	}
	m.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
}
