package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-engine/internal/gateway"
	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
	"signal-engine/internal/store"
)

// HandlerConfig wires the query surface to the running engine. Hub and
// Gatherer are optional; their routes are skipped when nil.
type HandlerConfig struct {
	Instruments []string
	Timeframes  []int
	Store       *store.Store
	Health      *metrics.HealthStatus
	Hub         *gateway.Hub
	Gatherer    prometheus.Gatherer
	Clock       func() time.Time
}

// Handler serves read-only views of the state store.
type Handler struct {
	cfg  HandlerConfig
	keys []model.Key
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Health == nil {
		cfg.Health = metrics.NewHealthStatus()
	}
	return &Handler{cfg: cfg, keys: model.Keys(cfg.Instruments, cfg.Timeframes)}
}

// RegisterRoutes mounts every route on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/symbols", h.Symbols)
	e.GET("/account", h.Account)
	e.GET("/state/:symbol/:timeframe", h.State)
	e.GET("/signals", h.Signals)
	e.GET("/stream", h.Stream)
	if h.cfg.Hub != nil {
		e.GET("/ws", echo.WrapHandler(http.HandlerFunc(h.cfg.Hub.ServeWS)))
		e.GET("/stats", h.Stats)
	}
	if h.cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{})))
	}
}

// Health reports liveness; 503 when the data source is down.
func (h *Handler) Health(c echo.Context) error {
	r := h.cfg.Health.Report(h.cfg.Clock())
	code := http.StatusOK
	if r.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, r)
}

func (h *Handler) Symbols(c echo.Context) error {
	syms := h.cfg.Instruments
	if syms == nil {
		syms = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"symbols": syms})
}

func (h *Handler) Account(c echo.Context) error {
	acct, profile := h.cfg.Store.Account()
	if acct == nil {
		return c.JSON(http.StatusOK, map[string]any{"status": "disconnected"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "connected",
		"account":      acct,
		"risk_profile": profile,
	})
}

type stateResponse struct {
	Status     string                  `json:"status"`
	Symbol     string                  `json:"symbol"`
	Timeframe  int                     `json:"timeframe"`
	LastPrice  model.OptionalFloat     `json:"last_price"`
	Indicators model.IndicatorSnapshot `json:"indicators"`
	Signals    []model.Signal          `json:"signals"`
	Candles    []model.Bar             `json:"candles"`
	Cycle      uint64                  `json:"cycle"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// State returns the full snapshot for one pair, or status "unavailable"
// when the pair is unknown or has not been published yet.
func (h *Handler) State(c echo.Context) error {
	tf, err := strconv.Atoi(c.Param("timeframe"))
	if err != nil || tf <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "timeframe must be a positive integer (minutes)",
		})
	}
	key := model.Key{Instrument: c.Param("symbol"), Timeframe: tf}
	snap, ok := h.cfg.Store.Get(key)
	if !ok {
		return c.JSON(http.StatusOK, map[string]any{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, stateResponse{
		Status:     "ok",
		Symbol:     key.Instrument,
		Timeframe:  key.Timeframe,
		LastPrice:  snap.LastPrice,
		Indicators: snap.Indicators,
		Signals:    nonNil(snap.Signals),
		Candles:    nonNilBars(snap.Bars),
		Cycle:      snap.Cycle,
		UpdatedAt:  snap.UpdatedAt,
	})
}

// signalView annotates a signal with the pair it came from. The pair's
// symbol shadows the embedded signal's own.
type signalView struct {
	model.Signal
	Symbol    string `json:"symbol"`
	Timeframe int    `json:"timeframe"`
}

// Signals lists every live signal across all pairs, in configured order.
func (h *Handler) Signals(c echo.Context) error {
	st := h.cfg.Store.ReadAll()
	out := []signalView{}
	for _, k := range h.keys {
		snap, ok := st.Markets[k]
		if !ok {
			continue
		}
		for _, sig := range snap.Signals {
			out = append(out, signalView{Signal: sig, Symbol: k.Instrument, Timeframe: k.Timeframe})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"signals": out})
}

type streamEntry struct {
	LastPrice model.OptionalFloat `json:"last_price"`
	Signals   []model.Signal      `json:"signals"`
}

// Stream returns {symbol: {timeframe: {last_price, signals}}} for every
// published pair.
func (h *Handler) Stream(c echo.Context) error {
	st := h.cfg.Store.ReadAll()
	out := make(map[string]map[string]streamEntry)
	for _, k := range h.keys {
		snap, ok := st.Markets[k]
		if !ok {
			continue
		}
		byTF, ok := out[k.Instrument]
		if !ok {
			byTF = make(map[string]streamEntry)
			out[k.Instrument] = byTF
		}
		byTF[strconv.Itoa(k.Timeframe)] = streamEntry{LastPrice: snap.LastPrice, Signals: nonNil(snap.Signals)}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cfg.Hub.Stats())
}

func nonNil(s []model.Signal) []model.Signal {
	if s == nil {
		return []model.Signal{}
	}
	return s
}

func nonNilBars(b []model.Bar) []model.Bar {
	if b == nil {
		return []model.Bar{}
	}
	return b
}
