package gateway

import (
	"encoding/json"
	"time"

	"signal-engine/internal/model"
)

// Envelope is the websocket message for one published snapshot. Bars are
// omitted; clients fetch them from the query API when needed.
type Envelope struct {
	Type       string                  `json:"type"`
	Seq        uint64                  `json:"seq"`
	Symbol     string                  `json:"symbol"`
	Timeframe  int                     `json:"timeframe"`
	Cycle      uint64                  `json:"cycle"`
	LastPrice  model.OptionalFloat     `json:"last_price"`
	Indicators model.IndicatorSnapshot `json:"indicators"`
	Signals    []model.Signal          `json:"signals"`
	TS         time.Time               `json:"ts"`
	Initial    bool                    `json:"initial,omitempty"`
}

func (h *Hub) broadcast(key model.Key, snap model.MarketSnapshot, now time.Time) {
	env := Envelope{
		Type:       "snapshot",
		Symbol:     key.Instrument,
		Timeframe:  key.Timeframe,
		Cycle:      snap.Cycle,
		LastPrice:  snap.LastPrice,
		Indicators: snap.Indicators,
		Signals:    snap.Signals,
		TS:         now,
	}
	if env.Signals == nil {
		env.Signals = []model.Signal{}
	}

	// seq assignment, encoding and fan-out happen under one lock so clients
	// always receive envelopes in seq order.
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	env.Seq = h.seq
	buf, err := json.Marshal(&env)
	if err != nil {
		h.seq--
		h.log.Error().Err(err).Str("pair", key.String()).Msg("encode envelope")
		return
	}
	h.latest[key] = buf
	h.replay.Push(env.Seq, buf)

	dropped := 0
	for c := range h.clients {
		if !c.matches(key) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		if m := h.cfg.Metrics; m != nil {
			m.WSDropped.Add(float64(dropped))
		}
		h.log.Debug().Int("dropped", dropped).Str("pair", key.String()).Msg("slow ws clients")
	}
}

// markInitial re-encodes a stored envelope with initial=true.
func markInitial(buf []byte) []byte {
	var env Envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return buf
	}
	env.Initial = true
	out, err := json.Marshal(&env)
	if err != nil {
		return buf
	}
	return out
}
