package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
)

var (
	eurM1 = model.Key{Instrument: "EURUSD", Timeframe: 1}
	gbpM5 = model.Key{Instrument: "GBPUSD", Timeframe: 5}
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(HubConfig{
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		Logger:  zerolog.Nop(),
	})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, h *Hub, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	want := h.ClientCount() + 1
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, func() bool { return h.ClientCount() >= want })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func publish(t *testing.T, h *Hub, key model.Key, price float64) {
	t.Helper()
	snap := model.MarketSnapshot{
		LastPrice: model.Some(price),
		Cycle:     1,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.PublishSnapshot(context.Background(), key, snap); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_InitialStateOnConnect(t *testing.T) {
	h, srv := newTestHub(t)
	publish(t, h, eurM1, 1.1)
	publish(t, h, eurM1, 1.2)

	conn := dial(t, h, srv, "")
	var env Envelope
	readJSON(t, conn, &env)

	if !env.Initial || env.Type != "snapshot" {
		t.Fatalf("expected initial snapshot, got %+v", env)
	}
	if env.Seq != 2 || env.LastPrice != model.Some(1.2) {
		t.Errorf("expected latest envelope (seq 2, 1.2), got seq=%d price=%v", env.Seq, env.LastPrice)
	}
	if env.Signals == nil {
		t.Error("signals should encode as an empty list")
	}
}

func TestHub_QuerySubscriptionFilters(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dial(t, h, srv, "?symbol=EURUSD&timeframe=1")

	publish(t, h, gbpM5, 1.3)
	publish(t, h, eurM1, 1.1)

	var env Envelope
	readJSON(t, conn, &env)
	if env.Symbol != "EURUSD" || env.Timeframe != 1 || env.Seq != 2 {
		t.Fatalf("expected only EURUSD:1 (seq 2), got %+v", env)
	}
	if env.Initial {
		t.Error("live envelope marked initial")
	}
}

func TestHub_SubscribeMessage(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dial(t, h, srv, "")

	if err := conn.WriteJSON(map[string]any{"type": "SUBSCRIBE", "symbol": "GBPUSD", "timeframe": 5}); err != nil {
		t.Fatal(err)
	}
	var ack map[string]any
	readJSON(t, conn, &ack)
	if ack["type"] != "ack" || ack["op"] != "SUBSCRIBE" || ack["symbol"] != "GBPUSD" {
		t.Fatalf("unexpected ack: %v", ack)
	}

	publish(t, h, eurM1, 1.1)
	publish(t, h, gbpM5, 1.3)

	var env Envelope
	readJSON(t, conn, &env)
	if env.Symbol != "GBPUSD" || env.Seq != 2 {
		t.Fatalf("expected GBPUSD seq 2, got %+v", env)
	}
}

func TestHub_PingAndErrors(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dial(t, h, srv, "")

	conn.WriteJSON(map[string]any{"type": "ping", "ping": 42})
	var pong map[string]any
	readJSON(t, conn, &pong)
	if pong["type"] != "pong" || pong["ping"] != float64(42) {
		t.Fatalf("unexpected pong: %v", pong)
	}

	conn.WriteJSON(map[string]any{"type": "SUBSCRIBE"})
	var bad map[string]any
	readJSON(t, conn, &bad)
	if bad["type"] != "error" {
		t.Fatalf("expected error for incomplete subscribe, got %v", bad)
	}

	conn.WriteJSON(map[string]any{"type": "bogus"})
	var unknown map[string]any
	readJSON(t, conn, &unknown)
	if unknown["type"] != "error" {
		t.Fatalf("expected error for unknown type, got %v", unknown)
	}
}

func TestHub_ReplaySince(t *testing.T) {
	h, srv := newTestHub(t)
	publish(t, h, eurM1, 1.1)
	publish(t, h, gbpM5, 1.3)
	publish(t, h, eurM1, 1.2)

	conn := dial(t, h, srv, "?since=1")
	for _, want := range []uint64{2, 3} {
		var env Envelope
		readJSON(t, conn, &env)
		if env.Seq != want || env.Initial {
			t.Fatalf("replay: expected seq %d, got %+v", want, env)
		}
	}
}

func TestHub_DisconnectAndStats(t *testing.T) {
	h, srv := newTestHub(t)
	conn := dial(t, h, srv, "")
	publish(t, h, eurM1, 1.1)

	s := h.Stats()
	if s.Clients != 1 || s.Seq != 1 || s.Buffered != 1 || s.LagSamples != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}
