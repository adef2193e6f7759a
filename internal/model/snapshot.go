package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Key identifies one (instrument, timeframe) pair.
type Key struct {
	Instrument string `json:"symbol"`
	Timeframe  int    `json:"timeframe_minutes"`
}

// String returns "instrument@Nm".
func (k Key) String() string {
	return k.Instrument + "@" + strconv.Itoa(k.Timeframe) + "m"
}

// Keys returns the cross product of instruments and timeframes.
func Keys(instruments []string, timeframes []int) []Key {
	keys := make([]Key, 0, len(instruments)*len(timeframes))
	for _, inst := range instruments {
		for _, tf := range timeframes {
			keys = append(keys, Key{Instrument: inst, Timeframe: tf})
		}
	}
	return keys
}

// IndicatorSnapshot holds the indicator values derived from one bar window.
// Each field is absent when the window is too short to compute it.
type IndicatorSnapshot struct {
	EMAFast    OptionalFloat `json:"ema_fast"`
	EMASlow    OptionalFloat `json:"ema_slow"`
	MACD       OptionalFloat `json:"macd"`
	MACDSignal OptionalFloat `json:"macd_signal"`
	MACDHist   OptionalFloat `json:"macd_hist"`
}

// MarketSnapshot is the published state for one key as of one refresh cycle.
// A new snapshot replaces the previous one wholesale.
type MarketSnapshot struct {
	LastPrice  OptionalFloat     `json:"last_price"`
	Bars       []Bar             `json:"candles"` // ascending by time, bounded
	Indicators IndicatorSnapshot `json:"indicators"`
	Signals    []Signal          `json:"signals"`
	Cycle      uint64            `json:"cycle"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so the receiver's backing arrays are never shared.
func (m *MarketSnapshot) Clone() MarketSnapshot {
	out := *m
	if m.Bars != nil {
		out.Bars = make([]Bar, len(m.Bars))
		copy(out.Bars, m.Bars)
	}
	if m.Signals != nil {
		out.Signals = make([]Signal, len(m.Signals))
		for i := range m.Signals {
			out.Signals[i] = m.Signals[i].Clone()
		}
	}
	return out
}

// JSON returns the JSON-encoded snapshot.
func (m *MarketSnapshot) JSON() []byte {
	b, _ := json.Marshal(m)
	return b
}
