package indicator

import "signal-engine/internal/model"

// EMA returns the exponential moving average of series.
// It seeds with the simple average of the first period values and then
// applies the 2/(period+1) multiplier across the remainder in order.
func EMA(series []float64, period int) model.OptionalFloat {
	if period <= 0 || len(series) < period {
		return model.None()
	}
	e := NewEMA(period)
	for _, v := range series {
		e.Update(v)
	}
	return e.Value()
}

// StreamingEMA calculates an exponential moving average one value at a time.
// O(1) per update with no window storage. After k updates its value is
// identical to EMA(series[:k], period).
type StreamingEMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a streaming EMA with the given period.
func NewEMA(period int) *StreamingEMA {
	return &StreamingEMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// Update feeds the next value of the series.
func (e *StreamingEMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price-e.current)*e.multiplier + e.current
}

// Value returns the current average, absent until period values have been seen.
func (e *StreamingEMA) Value() model.OptionalFloat {
	if !e.Ready() {
		return model.None()
	}
	return model.Some(e.current)
}

// Ready reports whether enough values have been accumulated.
func (e *StreamingEMA) Ready() bool { return e.period > 0 && e.count >= e.period }

// Peek computes what Value() would be with one more value, without mutating state.
func (e *StreamingEMA) Peek(price float64) model.OptionalFloat {
	switch {
	case e.period <= 0 || e.count+1 < e.period:
		return model.None()
	case e.count+1 == e.period:
		return model.Some((e.sum + price) / float64(e.period))
	default:
		return model.Some((price-e.current)*e.multiplier + e.current)
	}
}

// Reset clears the EMA state for reuse.
func (e *StreamingEMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
