package model

import "time"

// Tick is the latest traded price for an instrument as reported by a data source.
type Tick struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	TickTS     time.Time `json:"tick_ts"` // UTC timestamp
}
