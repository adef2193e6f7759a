// Package indicator provides technical indicator calculations over price series.
//
// The exported functions are pure: they read a series, never mutate it, and
// report an absent result when the series is too short. Absence propagates to
// every value derived from it.
package indicator

import "signal-engine/internal/model"

const (
	// FastEMAPeriod and SlowEMAPeriod are the EMA periods published in every snapshot.
	FastEMAPeriod = 9
	SlowEMAPeriod = 26

	// Default MACD parameters.
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// Compute derives the published indicator set from a close series.
func Compute(closes []float64) model.IndicatorSnapshot {
	m := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	return model.IndicatorSnapshot{
		EMAFast:    EMA(closes, FastEMAPeriod),
		EMASlow:    EMA(closes, SlowEMAPeriod),
		MACD:       m.Line,
		MACDSignal: m.Signal,
		MACDHist:   m.Hist,
	}
}
