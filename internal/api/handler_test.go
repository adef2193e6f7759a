package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus"

	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
	"signal-engine/internal/store"
)

var t0 = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *store.Store
	health *metrics.HealthStatus
	reg    *prometheus.Registry
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	instruments := []string{"EURUSD", "XAUUSD"}
	timeframes := []int{1, 5}
	f := &fixture{
		store:  store.New(model.Keys(instruments, timeframes)),
		health: metrics.NewHealthStatus(),
		reg:    prometheus.NewRegistry(),
	}
	h := NewHandler(HandlerConfig{
		Instruments: instruments,
		Timeframes:  timeframes,
		Store:       f.store,
		Health:      f.health,
		Gatherer:    f.reg,
		Clock:       func() time.Time { return t0 },
	})
	f.srv = NewServer(h)
	return f
}

func (f *fixture) get(t *testing.T, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, rec.Body.String())
		}
	}
	return rec
}

func snapshot(sigs ...model.Signal) model.MarketSnapshot {
	return model.MarketSnapshot{
		LastPrice: model.Some(1.25),
		Bars: []model.Bar{
			{Time: t0.Add(-time.Minute), Open: 1.2, High: 1.3, Low: 1.1, Close: 1.25, Volume: 10},
		},
		Indicators: model.IndicatorSnapshot{EMAFast: model.Some(1.22)},
		Signals:    sigs,
		Cycle:      1,
		UpdatedAt:  t0,
	}
}

func signal(inst string, tf int, strategy string) model.Signal {
	return model.Signal{
		ID:         strategy + "-id",
		Instrument: inst,
		Timeframe:  tf,
		Strategy:   strategy,
		Direction:  model.Buy,
		Confidence: 0.5,
		CreatedAt:  t0,
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	var body map[string]any
	rec := f.get(t, "/health", &body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, any("unhealthy"), body["status"])

	f.health.SetSourceConnected(true)
	rec = f.get(t, "/health", &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, any("ok"), body["status"])
}

func TestSymbols(t *testing.T) {
	f := newFixture(t)
	var body struct {
		Symbols []string `json:"symbols"`
	}
	f.get(t, "/symbols", &body)
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, body.Symbols)
}

func TestAccount(t *testing.T) {
	f := newFixture(t)

	var body map[string]any
	f.get(t, "/account", &body)
	assert.Equal(t, any("disconnected"), body["status"])

	f.store.UpdateAccount(model.AccountPosture{Balance: 1000, Equity: 1010, FreeMargin: 800, Leverage: 1000})
	body = nil
	f.get(t, "/account", &body)
	assert.Equal(t, any("connected"), body["status"])
	acct, ok := body["account"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, any(1000.0), acct["balance"])
	_, ok = body["risk_profile"].(map[string]any)
	assert.True(t, ok)
}

func TestState(t *testing.T) {
	f := newFixture(t)

	var missing map[string]any
	rec := f.get(t, "/state/EURUSD/1", &missing)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, any("unavailable"), missing["status"])

	rec = f.get(t, "/state/EURUSD/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.NoError(t, f.store.Update(model.Key{Instrument: "EURUSD", Timeframe: 1}, snapshot()))

	var body map[string]any
	f.get(t, "/state/EURUSD/1", &body)
	assert.Equal(t, any("ok"), body["status"])
	assert.Equal(t, any("EURUSD"), body["symbol"])
	assert.Equal(t, any(1.0), body["timeframe"])
	assert.Equal(t, any(1.25), body["last_price"])

	ind := body["indicators"].(map[string]any)
	assert.Equal(t, any(1.22), ind["ema_fast"])
	assert.Nil(t, ind["macd"])

	candles := body["candles"].([]any)
	assert.Equal(t, 1, len(candles))
	bar := candles[0].(map[string]any)
	for _, field := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		_, ok := bar[field]
		assert.True(t, ok)
	}
	assert.Equal(t, 0, len(body["signals"].([]any)))
}

func TestSignals(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.Update(model.Key{Instrument: "XAUUSD", Timeframe: 5},
		snapshot(signal("XAUUSD", 5, "macd_cross"))))
	assert.NoError(t, f.store.Update(model.Key{Instrument: "EURUSD", Timeframe: 1},
		snapshot(signal("EURUSD", 1, "ema_cross"), signal("EURUSD", 1, "volume_spike"))))

	var body struct {
		Signals []map[string]any `json:"signals"`
	}
	f.get(t, "/signals", &body)
	assert.Equal(t, 3, len(body.Signals))

	// configured order: EURUSD before XAUUSD
	assert.Equal(t, any("ema_cross"), body.Signals[0]["strategy"])
	assert.Equal(t, any("EURUSD"), body.Signals[0]["symbol"])
	assert.Equal(t, any(1.0), body.Signals[0]["timeframe"])
	assert.Equal(t, any("macd_cross"), body.Signals[2]["strategy"])
	assert.Equal(t, any("XAUUSD"), body.Signals[2]["symbol"])
	assert.Equal(t, any(5.0), body.Signals[2]["timeframe"])
}

func TestSignals_PairKeyOverridesSignalFields(t *testing.T) {
	f := newFixture(t)
	stray := signal("", 0, "power_close")
	assert.NoError(t, f.store.Update(model.Key{Instrument: "XAUUSD", Timeframe: 1}, snapshot(stray)))

	var body struct {
		Signals []map[string]any `json:"signals"`
	}
	f.get(t, "/signals", &body)
	assert.Equal(t, 1, len(body.Signals))
	assert.Equal(t, any("XAUUSD"), body.Signals[0]["symbol"])
	assert.Equal(t, any(1.0), body.Signals[0]["timeframe"])
	assert.Equal(t, any(0.0), body.Signals[0]["timeframe_minutes"])
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.Update(model.Key{Instrument: "EURUSD", Timeframe: 5},
		snapshot(signal("EURUSD", 5, "ema_cross"))))

	var body map[string]map[string]struct {
		LastPrice model.OptionalFloat `json:"last_price"`
		Signals   []model.Signal      `json:"signals"`
	}
	f.get(t, "/stream", &body)
	assert.Equal(t, 1, len(body))
	entry, ok := body["EURUSD"]["5"]
	assert.True(t, ok)
	assert.Equal(t, model.Some(1.25), entry.LastPrice)
	assert.Equal(t, 1, len(entry.Signals))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	m := metrics.NewMetrics(f.reg)
	m.CyclesTotal.Inc()

	rec := f.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "signalengine_cycles_total 1"))
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/symbols", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodOptions, "/symbols", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	rec = httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoverer(t *testing.T) {
	f := newFixture(t)
	f.srv.Echo().GET("/boom", func(echo.Context) error { panic("boom") })

	var body map[string]any
	rec := f.get(t, "/boom", &body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, any("error"), body["status"])
}
