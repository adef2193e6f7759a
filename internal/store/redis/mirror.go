// Package redis mirrors published market snapshots into Redis so that
// processes outside the engine can read the latest state (SET), follow it
// live (PUBLISH) and replay recent signals (XADD).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"signal-engine/internal/model"
)

const (
	defaultSnapshotTTL  = 10 * time.Minute
	defaultSignalMaxLen = 1000
)

// MirrorConfig configures the Redis mirror.
type MirrorConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	SnapshotTTL  time.Duration // TTL of snap:* keys; 0 selects the default
	SignalMaxLen int64         // approximate MAXLEN of signals:* streams

	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // open → half-open delay

	Logger zerolog.Logger

	// OnBreakerChange is called on circuit breaker transitions (metrics, health).
	OnBreakerChange func(from, to BreakerState)
}

// Mirror writes snapshots to Redis behind a circuit breaker. It implements
// model.SnapshotSink.
type Mirror struct {
	client *goredis.Client
	cb     *CircuitBreaker
	cfg    MirrorConfig
	log    zerolog.Logger
}

// New creates a Mirror and pings the server.
func New(cfg MirrorConfig) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	m := NewWithClient(client, cfg)
	m.log.Info().Str("addr", cfg.Addr).Msg("redis mirror connected")
	return m, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg MirrorConfig) *Mirror {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = defaultSnapshotTTL
	}
	if cfg.SignalMaxLen <= 0 {
		cfg.SignalMaxLen = defaultSignalMaxLen
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}

	m := &Mirror{
		client: client,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "redis-mirror").Logger(),
	}
	m.cb.OnStateChange = func(from, to BreakerState) {
		m.log.Warn().Stringer("from", from).Stringer("to", to).Msg("circuit breaker transition")
		if cfg.OnBreakerChange != nil {
			cfg.OnBreakerChange(from, to)
		}
	}
	return m
}

// Client returns the underlying Redis client for health checks.
func (m *Mirror) Client() *goredis.Client { return m.client }

// Breaker returns the mirror's circuit breaker.
func (m *Mirror) Breaker() *CircuitBreaker { return m.cb }

// SnapshotKey is the key holding the latest snapshot JSON for a pair.
func SnapshotKey(k model.Key) string {
	return "snap:" + strconv.Itoa(k.Timeframe) + "m:" + k.Instrument
}

// SnapshotChannel is the pub/sub channel announcing new snapshots for a pair.
func SnapshotChannel(k model.Key) string {
	return "pub:" + SnapshotKey(k)
}

// SignalStream is the stream receiving one entry per emitted signal.
func SignalStream(k model.Key) string {
	return "signals:" + strconv.Itoa(k.Timeframe) + "m:" + k.Instrument
}

// PublishSnapshot pipelines SET + PUBLISH of the snapshot and one XADD per
// signal. It returns ErrCircuitOpen without touching the network while the
// breaker is open.
func (m *Mirror) PublishSnapshot(ctx context.Context, key model.Key, snap model.MarketSnapshot) error {
	payload, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	signals := make([]string, len(snap.Signals))
	for i := range snap.Signals {
		signals[i] = string(snap.Signals[i].JSON())
	}

	return m.cb.Execute(func() error {
		pipe := m.client.Pipeline()
		pipe.Set(ctx, SnapshotKey(key), payload, m.cfg.SnapshotTTL)
		pipe.Publish(ctx, SnapshotChannel(key), payload)
		for _, sig := range signals {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: SignalStream(key),
				MaxLen: m.cfg.SignalMaxLen,
				Approx: true,
				Values: map[string]interface{}{"data": sig},
			})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis pipeline %s: %w", key, err)
		}
		return nil
	})
}

// Close closes the Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
