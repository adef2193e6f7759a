// Package gateway pushes every published market snapshot to websocket
// clients. The Hub is a model.SnapshotSink: the refresh loop hands it each
// snapshot after the state store accepted it, and the hub fans a compact
// envelope out to all clients whose subscriptions match the key.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
)

// HubConfig configures a Hub.
type HubConfig struct {
	ReplaySize int // envelopes kept for reconnecting clients; default 1000
	SendBuffer int // per-client queue; default 256
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Hub manages websocket clients and snapshot fan-out.
type Hub struct {
	cfg      HubConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[model.Key][]byte // last envelope per key
	seq     uint64

	replay *ReplayBuffer
	Lag    *PublishLag
}

// NewHub creates an empty Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.ReplaySize <= 0 {
		cfg.ReplaySize = 1000
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Hub{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "ws-hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*Client]bool),
		latest:  make(map[model.Key][]byte),
		replay:  NewReplayBuffer(cfg.ReplaySize),
		Lag:     NewPublishLag(10000),
	}
}

// PublishSnapshot broadcasts the snapshot's envelope. It never blocks on
// slow clients; their messages are dropped instead.
func (h *Hub) PublishSnapshot(_ context.Context, key model.Key, snap model.MarketSnapshot) error {
	now := h.cfg.Clock()
	if lag, ok := h.Lag.Observe(snap.UpdatedAt, now); ok && h.cfg.Metrics != nil {
		h.cfg.Metrics.WSPublishLag.Observe(lag.Seconds())
	}
	h.broadcast(key, snap, now)
	return nil
}

// ServeWS upgrades the request and registers the client. Query parameters:
// symbol and timeframe pre-subscribe the client to one key; since=<seq>
// replays buffered envelopes newer than seq instead of the latest state.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(h, conn)
	q := r.URL.Query()
	if sym := q.Get("symbol"); sym != "" {
		if tf, err := strconv.Atoi(q.Get("timeframe")); err == nil {
			c.subscribe(model.Key{Instrument: sym, Timeframe: tf})
		}
	}

	since, replay := uint64(0), false
	if v, err := strconv.ParseUint(q.Get("since"), 10, 64); err == nil {
		since, replay = v, true
	}

	// Registering and queueing the catch-up under one lock keeps broadcasts
	// from interleaving ahead of it.
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	if replay {
		c.queueReplay(since)
	} else {
		c.queueInitialState()
	}
	h.mu.Unlock()
	if m := h.cfg.Metrics; m != nil {
		m.WSClients.Set(float64(count))
	}
	h.log.Info().Int("clients", count).Bool("replay", replay).Msg("ws client connected")

	go c.writePump()
	go c.readPump()
}

// removeClient unregisters c and closes its queue.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if m := h.cfg.Metrics; m != nil {
		m.WSClients.Set(float64(count))
	}
	h.log.Info().Int("clients", count).Msg("ws client disconnected")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Stats summarises hub state for the query API.
type Stats struct {
	Clients    int     `json:"clients"`
	Seq        uint64  `json:"seq"`
	Buffered   int     `json:"buffered"`
	LagP50Ms   float64 `json:"lag_p50_ms"`
	LagP95Ms   float64 `json:"lag_p95_ms"`
	LagP99Ms   float64 `json:"lag_p99_ms"`
	LagSamples int     `json:"lag_samples"`
}

// Stats returns current hub statistics.
func (h *Hub) Stats() Stats {
	q := h.Lag.Quantiles()
	h.mu.RLock()
	s := Stats{Clients: len(h.clients), Seq: h.seq}
	h.mu.RUnlock()
	s.Buffered = h.replay.Len()
	s.LagP50Ms, s.LagP95Ms, s.LagP99Ms = ms(q.P50), ms(q.P95), ms(q.P99)
	s.LagSamples = q.Samples
	return s
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
