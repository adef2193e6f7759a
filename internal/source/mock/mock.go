// Package mock provides a random-walk data source for local runs and tests.
package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"signal-engine/internal/model"
	"signal-engine/internal/source"
)

// Source is a random-walk model.DataSource. Each instrument keeps a running
// price; ticks and bar windows continue the walk from it.
type Source struct {
	Balance float64

	mu        sync.Mutex
	rng       *rand.Rand
	now       func() time.Time
	prices    map[string]float64
	connected bool
}

// Option configures a Source.
type Option func(*Source)

// WithSeed makes the walk reproducible.
func WithSeed(seed int64) Option {
	return func(s *Source) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock overrides the bar timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// New creates a mock source with a 1000 balance.
func New(opts ...Option) *Source {
	s := &Source{
		Balance: 1000,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     func() time.Time { return time.Now().UTC() },
		prices:  make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Source) Disconnect() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

// AccountInfo reports equity at 101% and free margin at 80% of the balance.
func (s *Source) AccountInfo(context.Context) (*model.AccountPosture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, source.ErrNotConnected
	}
	return &model.AccountPosture{
		Balance:    s.Balance,
		Equity:     s.Balance * 1.01,
		FreeMargin: s.Balance * 0.8,
		Leverage:   1000,
	}, nil
}

// LatestTick moves the instrument's price by up to ±0.5.
func (s *Source) LatestTick(_ context.Context, instrument string) (model.OptionalFloat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return model.None(), source.ErrNotConnected
	}
	p := s.price(instrument) + s.uniform(-0.5, 0.5)
	s.prices[instrument] = p
	return model.Some(p), nil
}

// Bars walks count bars forward from the current price, ending one
// timeframe before now.
func (s *Source) Bars(_ context.Context, instrument string, tf, count int) ([]model.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, source.ErrNotConnected
	}
	if count <= 0 || tf <= 0 {
		return nil, nil
	}

	step := time.Duration(tf) * time.Minute
	end := s.now().Truncate(step)
	price := s.price(instrument)
	bars := make([]model.Bar, count)
	for i := range bars {
		open := price
		closePrice := price + s.uniform(-1, 1)
		bars[i] = model.Bar{
			Time:   end.Add(-step * time.Duration(count-i)),
			Open:   open,
			High:   max(open, closePrice) + s.uniform(0, 0.8),
			Low:    min(open, closePrice) - s.uniform(0, 0.8),
			Close:  closePrice,
			Volume: s.uniform(100, 2000),
		}
		price = closePrice
	}
	s.prices[instrument] = price
	return bars, nil
}

// price returns the running price, seeding it in [100, 300).
func (s *Source) price(instrument string) float64 {
	p, ok := s.prices[instrument]
	if !ok {
		p = s.uniform(100, 300)
		s.prices[instrument] = p
	}
	return p
}

func (s *Source) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
