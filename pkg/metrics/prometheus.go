package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	Transitions          *prometheus.CounterVec
	SweepRuns            *prometheus.CounterVec
	SweepItems           *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	SideEffectFailures   *prometheus.CounterVec
	SideEffectsDropped   prometheus.Counter
	ConcurrencyConflicts *prometheus.CounterVec
	PaymentVerifications *prometheus.CounterVec
	ErrorsCount          *prometheus.CounterVec
}

// NewMetrics registers metrics on the default registry
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers metrics on reg; tests pass a fresh prometheus.NewRegistry()
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "The total number of committed booking transitions",
		}, []string{"action", "to"}),
		SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweep_runs_total",
			Help:      "The total number of expiry sweeps by result",
		}, []string{"result"}),
		SweepItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweep_items_total",
			Help:      "Bookings handled by the expiry sweep by outcome",
		}, []string{"outcome"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expiry_sweep_duration_seconds",
			Help:      "Time taken by one expiry sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		SideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed after retries",
		}, []string{"kind"}),
		SideEffectsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effects_dropped_total",
			Help:      "Side effects dropped because the dispatch queue was full",
		}),
		ConcurrencyConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Version conflicts on booking writes by resolution",
		}, []string{"resolution"}),
		PaymentVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Applied payment verifications by outcome",
		}, []string{"outcome"}),
		ErrorsCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of errors",
		}, []string{"operation"}),
	}
}

// NewNopMetrics registers on a throwaway registry
func NewNopMetrics() *Metrics {
	return NewMetricsWithRegistry("test", prometheus.NewRegistry())
}
