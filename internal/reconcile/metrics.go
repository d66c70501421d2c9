package reconcile

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts reconciliation outcomes. All methods are nil-safe so tests
// and minimal setups can pass a nil *Metrics.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	sweepErrors   prometheus.Counter
	sweepDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "reconcile",
			Name:      "outcomes_total",
			Help:      "Reconciliation transitions applied, by outcome.",
		}, []string{"outcome"}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "reconcile",
			Name:      "sweep_errors_total",
			Help:      "Per-order failures during sweep passes.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shop",
			Subsystem: "reconcile",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of full sweep passes.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}

	reg.MustRegister(m.outcomes, m.sweepErrors, m.sweepDuration)
	return m
}

func (m *Metrics) observeOutcome(outcome Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) observeSweepError() {
	if m == nil {
		return
	}
	m.sweepErrors.Inc()
}

func (m *Metrics) observeSweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
