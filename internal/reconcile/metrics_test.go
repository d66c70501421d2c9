package reconcile

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeOutcome(OutcomeConfirmed)
	m.observeOutcome(OutcomeConfirmed)
	m.observeOutcome(OutcomeFailed)
	m.observeSweepError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues(string(OutcomeConfirmed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(string(OutcomeFailed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepErrors))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.observeOutcome(OutcomeConfirmed)
	m.observeSweepError()
	m.observeSweepDuration(1.5)
}
