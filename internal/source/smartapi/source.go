package smartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"signal-engine/internal/model"
	"signal-engine/internal/source"
)

// intervals maps timeframe minutes to SmartAPI candle intervals.
var intervals = map[int]string{
	1:    "ONE_MINUTE",
	3:    "THREE_MINUTE",
	5:    "FIVE_MINUTE",
	10:   "TEN_MINUTE",
	15:   "FIFTEEN_MINUTE",
	30:   "THIRTY_MINUTE",
	60:   "ONE_HOUR",
	1440: "ONE_DAY",
}

// Interval returns the SmartAPI interval name for a timeframe.
func Interval(tfMinutes int) (string, bool) {
	iv, ok := intervals[tfMinutes]
	return iv, ok
}

// Instrument locates an engine instrument on the broker.
type Instrument struct {
	Exchange      string // e.g. "NSE"
	Token         string // symbol token
	TradingSymbol string // e.g. "SBIN-EQ"
}

// ParseInstruments parses "name=EXCHANGE:TOKEN[:TRADINGSYMBOL]" entries
// separated by commas. The trading symbol defaults to the name.
func ParseInstruments(spec string) (map[string]Instrument, error) {
	out := make(map[string]Instrument)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, loc, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("instrument %q: missing '='", entry)
		}
		parts := strings.Split(loc, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("instrument %q: want EXCHANGE:TOKEN[:TRADINGSYMBOL]", entry)
		}
		name = strings.TrimSpace(name)
		inst := Instrument{Exchange: parts[0], Token: parts[1], TradingSymbol: name}
		if len(parts) == 3 && parts[2] != "" {
			inst.TradingSymbol = parts[2]
		}
		out[name] = inst
	}
	return out, nil
}

// Config configures the SmartAPI source.
type Config struct {
	APIKey      string
	ClientCode  string
	Password    string
	TOTPSecret  string
	Instruments map[string]Instrument
	Leverage    int // reported in the account posture; SmartAPI does not expose one

	RootURL string // default https://apiconnect.angelone.in
	Timeout time.Duration
	Logger  zerolog.Logger
	Clock   func() time.Time
}

// Source implements model.DataSource over SmartAPI.
type Source struct {
	cfg Config
	c   *client
	log zerolog.Logger

	mu        sync.RWMutex
	connected bool
}

var ist = time.FixedZone("IST", 5*3600+30*60)

// New creates a disconnected Source.
func New(cfg Config) *Source {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Source{
		cfg: cfg,
		c:   newClient(cfg.RootURL, cfg.APIKey, cfg.Timeout),
		log: cfg.Logger.With().Str("component", "smartapi").Logger(),
	}
}

// Connect logs in with a freshly generated TOTP code.
func (s *Source) Connect(ctx context.Context) error {
	code, err := totp.GenerateCode(s.cfg.TOTPSecret, s.cfg.Clock())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}
	if _, err := s.c.login(ctx, s.cfg.ClientCode, s.cfg.Password, code); err != nil {
		return fmt.Errorf("smartapi login: %w", err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.log.Info().Str("client", s.cfg.ClientCode).Msg("session established")
	return nil
}

// Disconnect logs out. The local session is dropped even if logout fails.
func (s *Source) Disconnect() error {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	s.mu.Unlock()
	if !was {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.c.logout(ctx, s.cfg.ClientCode)
}

func (s *Source) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return source.ErrNotConnected
	}
	return nil
}

func (s *Source) instrument(name string) (Instrument, error) {
	inst, ok := s.cfg.Instruments[name]
	if !ok {
		return Instrument{}, fmt.Errorf("smartapi: no broker mapping for instrument %q", name)
	}
	return inst, nil
}

// AccountInfo maps the RMS limits: net → balance, net + unrealised M2M →
// equity, available limit margin → free margin.
func (s *Source) AccountInfo(ctx context.Context) (*model.AccountPosture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	d, err := s.c.rms(ctx)
	if err != nil {
		return nil, err
	}
	bal := number(d.Net)
	return &model.AccountPosture{
		Balance:    bal,
		Equity:     bal + number(d.M2MUnrealized),
		FreeMargin: number(d.AvailableLimitMargin),
		Leverage:   s.cfg.Leverage,
	}, nil
}

// LatestTick returns the last traded price.
func (s *Source) LatestTick(ctx context.Context, name string) (model.OptionalFloat, error) {
	if err := s.ready(); err != nil {
		return model.None(), err
	}
	inst, err := s.instrument(name)
	if err != nil {
		return model.None(), err
	}
	p, err := s.c.ltp(ctx, ltpParams{Exchange: inst.Exchange, TradingSymbol: inst.TradingSymbol, SymbolToken: inst.Token})
	if err != nil {
		return model.None(), err
	}
	if p <= 0 {
		return model.None(), nil
	}
	return model.Some(p), nil
}

// Bars requests enough history to cover count bars across session gaps and
// returns the trailing count, oldest first.
func (s *Source) Bars(ctx context.Context, name string, tf, count int) ([]model.Bar, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}
	iv, ok := Interval(tf)
	if !ok {
		return nil, fmt.Errorf("smartapi: unsupported timeframe %dm", tf)
	}
	inst, err := s.instrument(name)
	if err != nil {
		return nil, err
	}

	// the historical API takes exchange-local (IST) bounds
	to := s.cfg.Clock().In(ist)
	from := to.Add(-time.Duration(tf*count*4) * time.Minute)
	rows, err := s.c.candles(ctx, candleParams{
		Exchange:    inst.Exchange,
		SymbolToken: inst.Token,
		Interval:    iv,
		FromDate:    from.Format("2006-01-02 15:04"),
		ToDate:      to.Format("2006-01-02 15:04"),
	})
	if err != nil {
		return nil, err
	}

	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		b, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("smartapi candle %d for %s: %w", i, name, err)
		}
		bars = append(bars, b)
	}
	model.SortBars(bars)
	return model.Trailing(bars, count), nil
}

func parseCandle(row []json.RawMessage) (model.Bar, error) {
	var b model.Bar
	if len(row) < 6 {
		return b, fmt.Errorf("want 6 fields, got %d", len(row))
	}
	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return b, fmt.Errorf("timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return b, fmt.Errorf("timestamp: %w", err)
	}
	b.Time = t.UTC()
	for i, dst := range []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume} {
		if err := json.Unmarshal(row[i+1], dst); err != nil {
			return b, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return b, nil
}

func number(n json.Number) float64 {
	if n == "" {
		return 0
	}
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return v
}
