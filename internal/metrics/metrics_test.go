package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("registers every collector", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(reg)

		m.ObserveRun("", time.Millisecond)
		m.AddBilledCost("EUR", 1.5)

		families, err := reg.Gather()
		require.NoError(t, err)
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.ElementsMatch(t, []string{"rating_runs_total", "rating_duration_seconds", "rating_billed_cost_total"}, names)
	})

	t.Run("labels runs by result and kind", func(t *testing.T) {
		m := New(nil)

		m.ObserveRun("", time.Millisecond)
		m.ObserveRun("", time.Millisecond)
		m.ObserveRun("imputation_failed", time.Millisecond)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(ResultOK, "")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(ResultError, "imputation_failed")))
	})

	t.Run("accumulates billed cost per currency", func(t *testing.T) {
		m := New(nil)

		m.AddBilledCost("DKK", 10)
		m.AddBilledCost("DKK", 2.5)
		m.AddBilledCost("DKK", -1)

		assert.Equal(t, 12.5, testutil.ToFloat64(m.BilledCostTotal.WithLabelValues("DKK")))
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics

		assert.NotPanics(t, func() {
			m.ObserveRun("x", time.Second)
			m.AddBilledCost("EUR", 1)
		})
	})
}
