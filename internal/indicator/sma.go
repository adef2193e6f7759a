package indicator

import "signal-engine/internal/model"

// SMA returns the simple average of the trailing period values of series.
func SMA(series []float64, period int) model.OptionalFloat {
	if period <= 0 || len(series) < period {
		return model.None()
	}
	var sum float64
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return model.Some(sum / float64(period))
}
