package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-engine/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is a single websocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// An empty subscription set receives every key.
	subMu sync.RWMutex
	subs  map[model.Key]bool
}

// controlMsg is a client → server message.
type controlMsg struct {
	Type      string `json:"type"` // SUBSCRIBE | UNSUBSCRIBE | ping
	Symbol    string `json:"symbol"`
	Timeframe int    `json:"timeframe"`
	Ping      int64  `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		subs: make(map[model.Key]bool),
	}
}

func (c *Client) subscribe(k model.Key) {
	c.subMu.Lock()
	c.subs[k] = true
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(k model.Key) {
	c.subMu.Lock()
	delete(c.subs, k)
	c.subMu.Unlock()
}

func (c *Client) matches(k model.Key) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[k]
}

// queueInitialState queues the latest envelope of every matching key.
// Caller holds hub.mu.
func (c *Client) queueInitialState() {
	for k, buf := range c.hub.latest {
		if !c.matches(k) {
			continue
		}
		c.queue(markInitial(buf))
	}
}

// queueReplay queues buffered envelopes newer than since. Caller holds hub.mu.
func (c *Client) queueReplay(since uint64) {
	for _, e := range c.hub.replay.Since(since) {
		var head struct {
			Symbol    string `json:"symbol"`
			Timeframe int    `json:"timeframe"`
		}
		if json.Unmarshal(e.Data, &head) == nil && !c.matches(model.Key{Instrument: head.Symbol, Timeframe: head.Timeframe}) {
			continue
		}
		c.queue(e.Data)
	}
}

func (c *Client) queue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			c.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE", "UNSUBSCRIBE":
			if msg.Symbol == "" || msg.Timeframe <= 0 {
				c.sendError("symbol and timeframe are required")
				continue
			}
			k := model.Key{Instrument: msg.Symbol, Timeframe: msg.Timeframe}
			if msg.Type == "SUBSCRIBE" {
				c.subscribe(k)
			} else {
				c.unsubscribe(k)
			}
			c.sendJSON(map[string]any{"type": "ack", "op": msg.Type, "symbol": k.Instrument, "timeframe": k.Timeframe})
		case "ping":
			c.sendJSON(map[string]any{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
		default:
			c.sendError("unknown type " + msg.Type)
		}
	}
}

// sendJSON queues a control reply. The hub lock guards against the queue
// being closed concurrently by removeClient.
func (c *Client) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.hub.clients[c] {
		c.queue(b)
	}
}

func (c *Client) sendError(msg string) {
	c.sendJSON(map[string]any{"type": "error", "error": msg})
}
