package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Transition("pending", "paid")
	m.Transition("pending", "paid")
	m.Reduce("committed")
	m.LockContention("order")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("pending", "paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reduces.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockContention.WithLabelValues("order")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("a", "b")
		m.Reduce("x")
		m.LockContention("y")
		m.External("settlement", "escrow", "ok", 0.1)
		m.TimerFired("payment_timeout", "ok")
	})
}
