package metrics

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus"
)

// counterSum gathers reg and sums every counter sample of the named family.
func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestNewMetrics_FreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CyclesTotal.Inc()
	m.PairsSkipped.WithLabelValues("empty").Add(2)
	m.SignalsTotal.WithLabelValues("power_close", "buy").Inc()

	assert.Equal(t, counterSum(t, reg, "signalengine_cycles_total"), float64(1))
	assert.Equal(t, counterSum(t, reg, "signalengine_pairs_skipped_total"), float64(2))
	assert.Equal(t, counterSum(t, reg, "signalengine_signals_total"), float64(1))

	// A second registry must accept the same collector names.
	NewMetrics(prometheus.NewRegistry())
}

func TestHealthStatus_Report(t *testing.T) {
	h := NewHealthStatus()
	now := h.StartedAt.Add(90 * time.Second)

	r := h.Report(now)
	assert.Equal(t, r.Status, "unhealthy")
	assert.Equal(t, r.LastCycleAt, "")
	assert.Nil(t, r.RedisConnected)

	h.SetSourceConnected(true)
	h.RecordCycle(now.Add(-500*time.Millisecond), 12*time.Millisecond)
	r = h.Report(now)
	assert.Equal(t, r.Status, "ok")
	assert.Equal(t, r.Uptime, "1m30s")
	assert.Equal(t, r.CycleAge, "500ms")
	assert.Equal(t, r.LastCycleMs, float64(12))

	h.SetRedisEnabled(true)
	assert.Equal(t, h.Report(now).Status, "ok")
	h.SetRedisConnected(false)
	r = h.Report(now)
	assert.Equal(t, r.Status, "degraded")
	assert.NotNil(t, r.RedisConnected)
	assert.False(t, *r.RedisConnected)

	h.SetSourceConnected(false)
	assert.Equal(t, h.Report(now).Status, "unhealthy")
}
