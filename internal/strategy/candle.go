package strategy

import (
	"math"

	"signal-engine/internal/indicator"
	"signal-engine/internal/model"
)

// Single-candle rules inspect only the latest bar, but still require a prior
// bar so that a lone first sample never produces a signal.
const candleMinBars = 2

const (
	bodyBreakMaxWickRatio  = 0.3
	bodyBreakVolumePeriod  = 5
	wickRejectionMinRatio  = 0.7
	rangeExpansionLookback = 5
	rangeExpansionMultiple = 1.5
	powerCloseMinBodyRatio = 0.6
	powerCloseEdgeRatio    = 0.1
)

func lastBar(bars []model.Bar) model.Bar {
	return bars[len(bars)-1]
}

// BodyBreakMomentum fires on a low-wick candle with at least average volume
// whose close lies outside the body of the same candle.
type BodyBreakMomentum struct{}

func (BodyBreakMomentum) Name() string { return "body_break_momentum" }

func (s BodyBreakMomentum) Evaluate(in Input) []model.Signal {
	if len(in.Bars) < candleMinBars {
		return nil
	}
	cur := lastBar(in.Bars)
	rng := cur.Range()
	if rng == 0 {
		return nil
	}
	bodyHigh, bodyLow := cur.BodyHigh(), cur.BodyLow()
	wickRatio := (rng - (bodyHigh - bodyLow)) / rng
	if wickRatio > bodyBreakMaxWickRatio {
		return nil
	}

	prior := model.Volumes(in.Bars[:len(in.Bars)-1])
	avgVol, ok := indicator.SMA(prior, bodyBreakVolumePeriod).Get()
	if !ok || cur.Volume < avgVol {
		return nil
	}

	switch {
	case cur.Close > bodyHigh:
		return []model.Signal{newSignal(in, s.Name(), model.Buy, 0.6, map[string]float64{"body_high": bodyHigh})}
	case cur.Close < bodyLow:
		return []model.Signal{newSignal(in, s.Name(), model.Sell, 0.6, map[string]float64{"body_low": bodyLow})}
	}
	return nil
}

// WickRejectionFade fades a long rejection wick.
//
// Sell: upper wick ≥ 70% of range and close below the body midpoint.
// Buy: lower wick ≥ 70% of range and close above the body midpoint.
type WickRejectionFade struct{}

func (WickRejectionFade) Name() string { return "wick_rejection_fade" }

func (s WickRejectionFade) Evaluate(in Input) []model.Signal {
	if len(in.Bars) < candleMinBars {
		return nil
	}
	cur := lastBar(in.Bars)
	rng := cur.Range()
	if rng == 0 {
		return nil
	}
	upper := (cur.High - cur.BodyHigh()) / rng
	lower := (cur.BodyLow() - cur.Low) / rng
	mid := (cur.Open + cur.Close) / 2

	if upper >= wickRejectionMinRatio && cur.Close < mid {
		return []model.Signal{newSignal(in, s.Name(), model.Sell, 0.55, map[string]float64{"upper_wick_ratio": upper})}
	}
	if lower >= wickRejectionMinRatio && cur.Close > mid {
		return []model.Signal{newSignal(in, s.Name(), model.Buy, 0.55, map[string]float64{"lower_wick_ratio": lower})}
	}
	return nil
}

// RangeExpansionBreakout fires when the latest range is at least 1.5x the
// average range of the five bars before it, in the direction of the candle.
type RangeExpansionBreakout struct{}

func (RangeExpansionBreakout) Name() string { return "range_expansion_breakout" }

func (s RangeExpansionBreakout) Evaluate(in Input) []model.Signal {
	n := len(in.Bars)
	if n < rangeExpansionLookback+1 {
		return nil
	}
	cur := lastBar(in.Bars)

	var sum float64
	for _, b := range in.Bars[n-1-rangeExpansionLookback : n-1] {
		sum += b.Range()
	}
	avg := sum / rangeExpansionLookback
	rng := cur.Range()
	if avg == 0 || rng < rangeExpansionMultiple*avg {
		return nil
	}

	return []model.Signal{newSignal(in, s.Name(), model.DirectionOf(cur.Close-cur.Open), 0.57, map[string]float64{
		"range_multiple": rng / avg,
	})}
}

// PowerClose fires on a large-bodied candle closing at its extreme.
//
// Buy: close within 10% of range from the high. Sell: within 10% of the low.
type PowerClose struct{}

func (PowerClose) Name() string { return "power_close" }

func (s PowerClose) Evaluate(in Input) []model.Signal {
	if len(in.Bars) < candleMinBars {
		return nil
	}
	cur := lastBar(in.Bars)
	rng := cur.Range()
	if rng == 0 {
		return nil
	}
	body := math.Abs(cur.Close - cur.Open)
	if body < powerCloseMinBodyRatio*rng {
		return nil
	}

	var dir model.Direction
	switch {
	case cur.Close >= cur.High-powerCloseEdgeRatio*rng:
		dir = model.Buy
	case cur.Close <= cur.Low+powerCloseEdgeRatio*rng:
		dir = model.Sell
	default:
		return nil
	}
	return []model.Signal{newSignal(in, s.Name(), dir, 0.59, map[string]float64{"body_ratio": body / rng})}
}

// MidBodyMeanReversion fades a candle that closed beyond its vertical midpoint
// in its own direction.
type MidBodyMeanReversion struct{}

func (MidBodyMeanReversion) Name() string { return "mid_body_mean_reversion" }

func (s MidBodyMeanReversion) Evaluate(in Input) []model.Signal {
	if len(in.Bars) < candleMinBars {
		return nil
	}
	cur := lastBar(in.Bars)
	rng := cur.Range()
	if rng == 0 {
		return nil
	}
	mid := cur.Low + 0.5*rng

	var dir model.Direction
	switch {
	case cur.Close > cur.Open && cur.Close > mid:
		dir = model.Sell
	case cur.Close < cur.Open && cur.Close < mid:
		dir = model.Buy
	default:
		return nil
	}
	return []model.Signal{newSignal(in, s.Name(), dir, 0.52, map[string]float64{"mid_level": mid})}
}
