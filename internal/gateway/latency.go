package gateway

import (
	"math"
	"slices"
	"sync"
	"time"
)

// PublishLag keeps a window of the most recent snapshot-to-fan-out delays:
// how long after the loop stamped UpdatedAt the hub broadcast the envelope.
type PublishLag struct {
	mu     sync.Mutex
	window []time.Duration
	next   int
	filled bool
}

// LagQuantiles summarises the current window.
type LagQuantiles struct {
	P50, P95, P99 time.Duration
	Samples       int
}

// NewPublishLag keeps the last size observations (10000 when size <= 0).
func NewPublishLag(size int) *PublishLag {
	if size <= 0 {
		size = 10000
	}
	return &PublishLag{window: make([]time.Duration, size)}
}

// Observe records now - updatedAt. Snapshots without a timestamp are
// ignored, and clock skew never records a negative lag.
func (p *PublishLag) Observe(updatedAt, now time.Time) (time.Duration, bool) {
	if updatedAt.IsZero() {
		return 0, false
	}
	lag := max(now.Sub(updatedAt), 0)

	p.mu.Lock()
	p.window[p.next] = lag
	p.next++
	if p.next == len(p.window) {
		p.next, p.filled = 0, true
	}
	p.mu.Unlock()
	return lag, true
}

// Quantiles returns nearest-rank p50/p95/p99 over the window.
func (p *PublishLag) Quantiles() LagQuantiles {
	p.mu.Lock()
	n := p.next
	if p.filled {
		n = len(p.window)
	}
	sorted := slices.Clone(p.window[:n])
	p.mu.Unlock()

	if n == 0 {
		return LagQuantiles{}
	}
	slices.Sort(sorted)
	rank := func(q float64) time.Duration {
		i := int(math.Ceil(q*float64(n))) - 1
		return sorted[max(i, 0)]
	}
	return LagQuantiles{P50: rank(0.50), P95: rank(0.95), P99: rank(0.99), Samples: n}
}
