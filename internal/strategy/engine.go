// Package strategy provides the signal rule set and the engine that runs it.
//
// A Strategy inspects one bar window (and, for some rules, the indicator
// snapshot computed from it) and emits zero or more directional signals.
// Strategies are pure and independent; the Engine runs every registered
// strategy on each evaluation and concatenates the results in registration order.
package strategy

import (
	"time"

	"github.com/google/uuid"

	"signal-engine/internal/model"
)

// Input is the data a strategy evaluates.
type Input struct {
	Instrument string
	Timeframe  int
	Bars       []model.Bar // ascending by time; never mutated
	Indicators model.IndicatorSnapshot
	Now        time.Time
}

// Strategy is the interface that all signal rules implement.
type Strategy interface {
	// Name returns the unique name of the strategy, e.g. "ema_crossover".
	Name() string

	// Evaluate returns the signals triggered by the input. An empty result is
	// normal quiescence, including when the window is too short.
	Evaluate(in Input) []model.Signal
}

// Engine holds a fixed list of strategies.
type Engine struct {
	strategies []Strategy
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the signal timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the signal ID source.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates an engine with the given strategies.
func NewEngine(strategies []Strategy, opts ...Option) *Engine {
	e := &Engine{
		strategies: strategies,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Default returns the full rule set in its canonical order.
func Default() []Strategy {
	return []Strategy{
		NewEMACrossover(),
		MACDSignalEMA2Cross{},
		BodyBreakMomentum{},
		WickRejectionFade{},
		RangeExpansionBreakout{},
		PowerClose{},
		MidBodyMeanReversion{},
		MACDHistBias{},
	}
}

// Strategies returns the registered strategy names in order.
func (e *Engine) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Evaluate runs every strategy against the same bar window.
// No deduplication or suppression is applied between strategies.
func (e *Engine) Evaluate(instrument string, timeframe int, bars []model.Bar, ind model.IndicatorSnapshot) []model.Signal {
	in := Input{
		Instrument: instrument,
		Timeframe:  timeframe,
		Bars:       bars,
		Indicators: ind,
		Now:        e.now(),
	}

	var out []model.Signal
	for _, s := range e.strategies {
		for _, sig := range s.Evaluate(in) {
			sig.ID = e.newID()
			out = append(out, sig)
		}
	}
	return out
}

// newSignal builds a signal for the input.
func newSignal(in Input, strategy string, dir model.Direction, confidence float64, diag map[string]float64) model.Signal {
	return model.Signal{
		Instrument:  in.Instrument,
		Timeframe:   in.Timeframe,
		Strategy:    strategy,
		Direction:   dir,
		Confidence:  confidence,
		CreatedAt:   in.Now,
		Diagnostics: diag,
	}
}

// crossed reports a sign change between prev and curr.
func crossed(prev, curr float64) bool {
	return (prev <= 0 && curr > 0) || (prev >= 0 && curr < 0)
}
