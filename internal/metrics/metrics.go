package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rating run results
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics bundles rating metrics.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	BilledCostTotal *prometheus.CounterVec
}

// New constructs metrics and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rating_runs_total",
				Help: "Total rating runs by result and error kind",
			},
			[]string{"result", "kind"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rating_duration_seconds",
			Help:    "Rating run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BilledCostTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rating_billed_cost_total",
				Help: "Total billed cost of rated sessions by currency",
			},
			[]string{"currency"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.RunsTotal, m.RunDuration, m.BilledCostTotal)
	}
	return m
}

// ObserveRun records one rating run. kind is empty for successful runs.
func (m *Metrics) ObserveRun(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if kind != "" {
		result = ResultError
	}
	m.RunsTotal.WithLabelValues(result, kind).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// AddBilledCost adds the total cost of a rated session.
func (m *Metrics) AddBilledCost(currency string, cost float64) {
	if m == nil || cost < 0 {
		return
	}
	m.BilledCostTotal.WithLabelValues(currency).Add(cost)
}
