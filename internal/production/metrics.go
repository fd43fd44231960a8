package production

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/comalice/harel"
)

// Metrics records engine activity as Prometheus metrics through
// harel.LifecycleHooks.
type Metrics struct {
	stateEntries *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	macrosteps   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	microsteps   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stateEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harel_state_entries_total",
			Help: "Number of state entries.",
		}, []string{"chart", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harel_transitions_total",
			Help: "Number of fired transitions.",
		}, []string{"chart"}),
		macrosteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harel_macrosteps_total",
			Help: "Number of processed triggers by outcome.",
		}, []string{"chart", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harel_macrostep_duration_seconds",
			Help:    "Wall time spent in one macrostep.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"chart"}),
		microsteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harel_macrostep_microsteps",
			Help:    "Microsteps executed per macrostep.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 64, 256},
		}, []string{"chart"}),
	}
	if reg != nil {
		reg.MustRegister(m.stateEntries, m.transitions, m.macrosteps, m.duration, m.microsteps)
	}
	return m
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() harel.LifecycleHooks {
	return harel.LifecycleHooks{
		OnStateEnter: func(_ context.Context, ev *harel.StateEvent) {
			m.stateEntries.WithLabelValues(ev.Chart, ev.Label).Inc()
		},
		OnTransition: func(_ context.Context, ev *harel.TransitionEvent) {
			m.transitions.WithLabelValues(ev.Chart).Inc()
		},
		OnMacrostep: func(_ context.Context, ev *harel.MacrostepEvent) {
			m.macrosteps.WithLabelValues(ev.Chart, outcome(ev)).Inc()
			m.duration.WithLabelValues(ev.Chart).Observe(ev.Duration.Seconds())
			m.microsteps.WithLabelValues(ev.Chart).Observe(float64(ev.Microsteps))
		},
	}
}

func outcome(ev *harel.MacrostepEvent) string {
	switch {
	case ev.Ignored:
		return "ignored"
	case ev.Err != nil:
		return "error"
	}
	return "ok"
}
