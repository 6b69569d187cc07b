package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the coordinator reports to. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	transitions    *prometheus.CounterVec
	reduces        *prometheus.CounterVec
	lockContention *prometheus.CounterVec
	externalCalls  *prometheus.CounterVec
	externalDur    *prometheus.HistogramVec
	timersFired    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presale", Name: "order_transitions_total",
			Help: "Order status transitions committed.",
		}, []string{"from", "to"}),
		reduces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presale", Name: "inventory_reduce_total",
			Help: "Inventory reduce attempts by outcome.",
		}, []string{"outcome"}),
		lockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presale", Name: "lock_contention_total",
			Help: "Lock acquisitions that found the key held.",
		}, []string{"scope"}),
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presale", Name: "external_requests_total",
			Help: "Calls to settlement and minting collaborators.",
		}, []string{"peer", "op", "outcome"}),
		externalDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "presale", Name: "external_request_duration_seconds",
			Help:    "Latency of calls to settlement and minting collaborators, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"peer", "op"}),
		timersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presale", Name: "timers_fired_total",
			Help: "Deferred order timers dispatched by the sweeper.",
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.reduces, m.lockContention, m.externalCalls, m.externalDur, m.timersFired)
	}
	return m
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Reduce(outcome string) {
	if m == nil {
		return
	}
	m.reduces.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LockContention(scope string) {
	if m == nil {
		return
	}
	m.lockContention.WithLabelValues(scope).Inc()
}

func (m *Metrics) External(peer, op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(peer, op, outcome).Inc()
	m.externalDur.WithLabelValues(peer, op).Observe(seconds)
}

func (m *Metrics) TimerFired(kind, outcome string) {
	if m == nil {
		return
	}
	m.timersFired.WithLabelValues(kind, outcome).Inc()
}
