package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
)

var lagBase = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func observeMs(p *PublishLag, ms ...int) {
	for _, v := range ms {
		p.Observe(lagBase, lagBase.Add(time.Duration(v)*time.Millisecond))
	}
}

func TestPublishLag_Empty(t *testing.T) {
	if q := NewPublishLag(100).Quantiles(); q != (LagQuantiles{}) {
		t.Errorf("empty window: got %+v", q)
	}
}

func TestPublishLag_IgnoresUnstampedAndClampsSkew(t *testing.T) {
	p := NewPublishLag(10)
	if _, ok := p.Observe(time.Time{}, lagBase); ok {
		t.Fatal("zero UpdatedAt should not be observed")
	}
	lag, ok := p.Observe(lagBase, lagBase.Add(-time.Second))
	if !ok || lag != 0 {
		t.Fatalf("future UpdatedAt: got (%v, %v), want (0, true)", lag, ok)
	}
	if q := p.Quantiles(); q.Samples != 1 || q.P99 != 0 {
		t.Errorf("unexpected quantiles: %+v", q)
	}
}

func TestPublishLag_NearestRank(t *testing.T) {
	p := NewPublishLag(1000)
	for i := 100; i >= 1; i-- {
		observeMs(p, i)
	}

	q := p.Quantiles()
	want := LagQuantiles{P50: 50 * time.Millisecond, P95: 95 * time.Millisecond, P99: 99 * time.Millisecond, Samples: 100}
	if q != want {
		t.Errorf("got %+v, want %+v", q, want)
	}
}

func TestPublishLag_WindowEvictsOldest(t *testing.T) {
	p := NewPublishLag(10)
	for i := 1; i <= 25; i++ {
		observeMs(p, i)
	}

	// Only 16..25 remain.
	q := p.Quantiles()
	if q.Samples != 10 || q.P50 != 20*time.Millisecond || q.P99 != 25*time.Millisecond {
		t.Errorf("unexpected quantiles after wrap: %+v", q)
	}
}

func TestHub_RecordsPublishLag(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHub(HubConfig{
		Logger:  zerolog.Nop(),
		Metrics: metrics.NewMetrics(reg),
		Clock:   func() time.Time { return lagBase },
	})
	key := model.Key{Instrument: "EURUSD", Timeframe: 1}

	snap := model.MarketSnapshot{UpdatedAt: lagBase.Add(-25 * time.Millisecond)}
	if err := h.PublishSnapshot(context.Background(), key, snap); err != nil {
		t.Fatal(err)
	}
	if err := h.PublishSnapshot(context.Background(), key, model.MarketSnapshot{}); err != nil {
		t.Fatal(err)
	}

	s := h.Stats()
	if s.LagSamples != 1 || s.LagP50Ms != 25 {
		t.Fatalf("unexpected lag stats: %+v", s)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var count uint64
	for _, mf := range families {
		if mf.GetName() == "signalengine_ws_publish_lag_seconds" {
			count = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	if count != 1 {
		t.Errorf("lag histogram count = %d, want 1", count)
	}
}
