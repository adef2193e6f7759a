package metrics

import (
	"context"
	"database/sql"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram
	LastCycleTime prometheus.Gauge

	// Per-pair outcomes
	PairsSkipped       *prometheus.CounterVec // labels: reason
	SnapshotsPublished prometheus.Counter
	SignalsTotal       *prometheus.CounterVec // labels: strategy, direction
	SourceErrors       *prometheus.CounterVec // labels: op

	// Downstream sinks
	SinkErrors               *prometheus.CounterVec // labels: sink
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	WSClients                prometheus.Gauge
	WSDropped                prometheus.Counter
	WSPublishLag             prometheus.Histogram
	AlertsDropped            *prometheus.CounterVec // labels: reason
}

// NewMetrics creates all collectors and registers them on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_cycles_total",
			Help: "Completed refresh cycles",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_cycle_duration_seconds",
			Help:    "Wall time of one refresh cycle, excluding the inter-cycle sleep",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LastCycleTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_last_cycle_timestamp_seconds",
			Help: "Unix time the last refresh cycle completed",
		}),

		PairsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_pairs_skipped_total",
			Help: "Instrument/timeframe pairs skipped in a cycle (by reason)",
		}, []string{"reason"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_snapshots_published_total",
			Help: "Market snapshots written to the state store",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_total",
			Help: "Signals emitted (by strategy and direction)",
		}, []string{"strategy", "direction"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_source_errors_total",
			Help: "Data source call failures (by operation)",
		}, []string{"op"}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_sink_errors_total",
			Help: "Snapshot sink publish failures (by sink)",
		}, []string{"sink"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ws_dropped_total",
			Help: "Websocket messages dropped for slow clients",
		}),
		WSPublishLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_ws_publish_lag_seconds",
			Help:    "Delay between a snapshot's UpdatedAt and its websocket broadcast",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		AlertsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_alerts_dropped_total",
			Help: "Signal alerts not delivered (by reason)",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.LastCycleTime,
		m.PairsSkipped,
		m.SnapshotsPublished,
		m.SignalsTotal,
		m.SourceErrors,
		m.SinkErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
		m.WSDropped,
		m.WSPublishLag,
		m.AlertsDropped,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SourceConnected bool
	LastCycleAt     time.Time
	LastCycleDur    time.Duration
	RedisEnabled    bool
	RedisConnected  bool
	SQLiteEnabled   bool
	SQLiteOK        bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// Report is the JSON view of HealthStatus.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	SourceConnected bool    `json:"source_connected"`
	LastCycleAt     string  `json:"last_cycle_at,omitempty"`
	CycleAge        string  `json:"cycle_age,omitempty"`
	LastCycleMs     float64 `json:"last_cycle_ms"`
	RedisConnected  *bool   `json:"redis_connected,omitempty"`
	RedisLatencyMs  float64 `json:"redis_latency_ms,omitempty"`
	SQLiteOK        *bool   `json:"sqlite_ok,omitempty"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms,omitempty"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetSourceConnected(v bool) {
	h.mu.Lock()
	h.SourceConnected = v
	h.mu.Unlock()
}

// RecordCycle marks a completed refresh cycle.
func (h *HealthStatus) RecordCycle(at time.Time, dur time.Duration) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastCycleDur = dur
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteEnabled(v bool) {
	h.mu.Lock()
	h.SQLiteEnabled = v
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Report summarises the current health. Status is "ok" when the data source
// is connected and every enabled dependency is reachable, "degraded" when the
// source is up but an optional dependency is not, and "unhealthy" otherwise.
func (h *HealthStatus) Report(now time.Time) Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{
		Status:          "ok",
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		SourceConnected: h.SourceConnected,
		LastCycleMs:     float64(h.LastCycleDur.Microseconds()) / 1000.0,
	}
	if !h.LastCycleAt.IsZero() {
		r.LastCycleAt = h.LastCycleAt.Format(time.RFC3339)
		r.CycleAge = now.Sub(h.LastCycleAt).Round(time.Millisecond).String()
	}
	if h.RedisEnabled {
		v := h.RedisConnected
		r.RedisConnected = &v
		r.RedisLatencyMs = h.RedisLatencyMs
		if !v {
			r.Status = "degraded"
		}
	}
	if h.SQLiteEnabled {
		v := h.SQLiteOK
		r.SQLiteOK = &v
		r.SQLiteLatencyMs = h.SQLiteLatencyMs
		if !v {
			r.Status = "degraded"
		}
	}
	if !h.SourceConnected {
		r.Status = "unhealthy"
	}
	return r
}
