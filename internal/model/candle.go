package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Bar represents one OHLCV sample for a fixed time bucket.
// Bars are produced by a data source and never mutated afterwards.
type Bar struct {
	Time   time.Time `json:"timestamp"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range returns high minus low.
func (b *Bar) Range() float64 {
	return b.High - b.Low
}

// BodyHigh returns the upper edge of the candle body.
func (b *Bar) BodyHigh() float64 {
	if b.Open > b.Close {
		return b.Open
	}
	return b.Close
}

// BodyLow returns the lower edge of the candle body.
func (b *Bar) BodyLow() float64 {
	if b.Open < b.Close {
		return b.Open
	}
	return b.Close
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Closes extracts the close series from bars, oldest first.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// Volumes extracts the volume series from bars, oldest first.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Volume
	}
	return out
}

// SortBars orders bars ascending by time in place. It reports whether the
// input was already sorted.
func SortBars(bars []Bar) bool {
	less := func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) }
	if sort.SliceIsSorted(bars, less) {
		return true
	}
	sort.SliceStable(bars, less)
	return false
}

// Trailing returns a copy of the last n bars (all of them if fewer).
func Trailing(bars []Bar, n int) []Bar {
	if n < 0 {
		n = 0
	}
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	out := make([]Bar, len(bars)-start)
	copy(out, bars[start:])
	return out
}
