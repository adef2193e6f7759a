package strategy

import (
	"math"

	"signal-engine/internal/indicator"
	"signal-engine/internal/model"
)

// EMACrossover fires when the fast EMA crosses the slow EMA on the latest bar
// and the latest close sits outside the band spanned by the two averages.
//
// Buy: close above both EMAs. Sell: close below both EMAs.
type EMACrossover struct {
	FastPeriod int
	SlowPeriod int
}

// NewEMACrossover creates the 9/26 crossover.
func NewEMACrossover() EMACrossover {
	return EMACrossover{FastPeriod: indicator.FastEMAPeriod, SlowPeriod: indicator.SlowEMAPeriod}
}

func (EMACrossover) Name() string { return "ema_crossover" }

func (s EMACrossover) Evaluate(in Input) []model.Signal {
	closes := model.Closes(in.Bars)
	if len(closes) < s.SlowPeriod+1 {
		return nil
	}
	prev := closes[:len(closes)-1]

	fastPrev, ok1 := indicator.EMA(prev, s.FastPeriod).Get()
	slowPrev, ok2 := indicator.EMA(prev, s.SlowPeriod).Get()
	fast, ok3 := indicator.EMA(closes, s.FastPeriod).Get()
	slow, ok4 := indicator.EMA(closes, s.SlowPeriod).Get()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	if !crossed(fastPrev-slowPrev, fast-slow) {
		return nil
	}

	last := closes[len(closes)-1]
	var dir model.Direction
	switch {
	case last > math.Max(fast, slow):
		dir = model.Buy
	case last < math.Min(fast, slow):
		dir = model.Sell
	default:
		return nil
	}

	return []model.Signal{newSignal(in, s.Name(), dir, 0.62, map[string]float64{
		"ema_fast": fast,
		"ema_slow": slow,
	})}
}

// MACDSignalEMA2Cross fires when the difference between the MACD signal line
// and EMA(2) of closes changes sign on the latest bar.
type MACDSignalEMA2Cross struct{}

const macdCrossMinBars = 30

func (MACDSignalEMA2Cross) Name() string { return "macd_signal_ema2_cross" }

func (s MACDSignalEMA2Cross) Evaluate(in Input) []model.Signal {
	closes := model.Closes(in.Bars)
	if len(closes) < macdCrossMinBars {
		return nil
	}
	prev := closes[:len(closes)-1]

	sig, ema2, ok := macdSignalAndEMA2(closes)
	if !ok {
		return nil
	}
	prevSig, prevEMA2, ok := macdSignalAndEMA2(prev)
	if !ok {
		return nil
	}

	prevDiff := prevSig - prevEMA2
	currDiff := sig - ema2
	if !crossed(prevDiff, currDiff) {
		return nil
	}

	return []model.Signal{newSignal(in, s.Name(), model.DirectionOf(currDiff), 0.58, map[string]float64{
		"macd_signal": sig,
		"ema_2":       ema2,
	})}
}

func macdSignalAndEMA2(closes []float64) (float64, float64, bool) {
	m := indicator.MACD(closes, indicator.MACDFast, indicator.MACDSlow, indicator.MACDSignal)
	if !m.Line.Valid {
		return 0, 0, false
	}
	sig, ok := m.Signal.Get()
	if !ok {
		return 0, 0, false
	}
	ema2, ok := indicator.EMA(closes, 2).Get()
	if !ok {
		return 0, 0, false
	}
	return sig, ema2, true
}

// MACDHistBias emits the direction of the MACD histogram whenever it is present.
type MACDHistBias struct{}

func (MACDHistBias) Name() string { return "macd_hist_bias" }

func (s MACDHistBias) Evaluate(in Input) []model.Signal {
	hist, ok := in.Indicators.MACDHist.Get()
	if !ok {
		return nil
	}
	return []model.Signal{newSignal(in, s.Name(), model.DirectionOf(hist), 0.5, map[string]float64{
		"macd_hist": hist,
	})}
}
