package indicator

import "signal-engine/internal/model"

// MACDResult holds the three MACD outputs; each is independently absent.
type MACDResult struct {
	Line   model.OptionalFloat
	Signal model.OptionalFloat
	Hist   model.OptionalFloat
}

// MACD computes the MACD line, signal line and histogram of series.
//
// The signal line is the EMA(signal) of the macd-line history, where the
// history holds EMA(fast)-EMA(slow) evaluated at every prefix length of series
// for which both averages exist. The history is rebuilt in a single pass with
// streaming EMAs; a streaming EMA after k values equals the EMA of the first k
// values, so the result matches prefix-by-prefix recomputation exactly.
func MACD(series []float64, fast, slow, signal int) MACDResult {
	var out MACDResult
	if fast <= 0 || slow <= 0 || signal <= 0 || len(series) < slow {
		return out
	}

	fastEMA := NewEMA(fast)
	slowEMA := NewEMA(slow)
	sigEMA := NewEMA(signal)
	var line model.OptionalFloat
	for _, v := range series {
		fastEMA.Update(v)
		slowEMA.Update(v)
		f, okF := fastEMA.Value().Get()
		s, okS := slowEMA.Value().Get()
		if !okF || !okS {
			continue
		}
		line = model.Some(f - s)
		sigEMA.Update(line.Value)
	}

	out.Line = line
	out.Signal = sigEMA.Value()
	if l, ok := out.Line.Get(); ok {
		if sg, ok := out.Signal.Get(); ok {
			out.Hist = model.Some(l - sg)
		}
	}
	return out
}
