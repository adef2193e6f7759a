package model

import (
	"encoding/json"
	"time"
)

// Direction is the side suggested by a signal.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// DirectionOf returns Buy for a strictly positive value and Sell otherwise.
func DirectionOf(v float64) Direction {
	if v > 0 {
		return Buy
	}
	return Sell
}

// Signal is a directional suggestion produced by one strategy for one
// evaluation. It has no lifecycle beyond creation.
type Signal struct {
	ID          string             `json:"id"`
	Instrument  string             `json:"symbol"`
	Timeframe   int                `json:"timeframe_minutes"`
	Strategy    string             `json:"strategy"`
	Direction   Direction          `json:"direction"`
	Confidence  float64            `json:"confidence"` // in (0,1]
	CreatedAt   time.Time          `json:"created_at"`
	Diagnostics map[string]float64 `json:"metadata"`
}

// Clone returns a deep copy of the signal.
func (s *Signal) Clone() Signal {
	out := *s
	if s.Diagnostics != nil {
		out.Diagnostics = make(map[string]float64, len(s.Diagnostics))
		for k, v := range s.Diagnostics {
			out.Diagnostics[k] = v
		}
	}
	return out
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
