// Command signalengine polls a market data source, computes indicators and
// rule signals for every (instrument, timeframe) pair, and serves the latest
// state over HTTP and websocket.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"signal-engine/config"
	"signal-engine/internal/api"
	"signal-engine/internal/gateway"
	"signal-engine/internal/logger"
	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
	"signal-engine/internal/notification"
	"signal-engine/internal/refresh"
	"signal-engine/internal/source/mock"
	"signal-engine/internal/source/smartapi"
	sqlitesource "signal-engine/internal/source/sqlite"
	"signal-engine/internal/store"
	redisstore "signal-engine/internal/store/redis"
	sqlitestore "signal-engine/internal/store/sqlite"
	"signal-engine/internal/strategy"
)

func main() {
	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "signalengine: config: %v\n", err)
		os.Exit(2)
	}

	log := logger.Init("signalengine", cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("signalengine exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Strs("symbols", cfg.Symbols).
		Ints("timeframes", cfg.Timeframes).
		Dur("interval", cfg.RefreshInterval).
		Str("source", cfg.DataSource).
		Msg("starting")

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()

	// ---- SQLite (data source and/or recorder) ----
	var sqlDB *sqlitestore.DB
	if cfg.SQLitePath != "" && (cfg.DataSource == config.SourceSQLite || cfg.RecordSQLite) {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("sqlite dir: %w", err)
		}
		db, err := sqlitestore.Open(cfg.SQLitePath, log)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer db.Close()
		health.SetSQLiteEnabled(true)
		sqlDB = db
	}

	src, err := newSource(cfg, sqlDB, log)
	if err != nil {
		return err
	}

	st := store.New(model.Keys(cfg.Symbols, cfg.Timeframes))
	hub := gateway.NewHub(gateway.HubConfig{Metrics: prom, Logger: log})

	sinks := []refresh.Sink{{Name: "ws", SnapshotSink: hub}}
	if cfg.RecordSQLite && sqlDB != nil && cfg.DataSource != config.SourceSQLite {
		sinks = append(sinks, refresh.Sink{Name: "sqlite", SnapshotSink: sqlDB})
	}

	// ---- Redis mirror (optional) ----
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		mirror, err := redisstore.New(redisstore.MirrorConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Logger:   log,
			OnBreakerChange: func(_, to redisstore.BreakerState) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				health.SetRedisConnected(to != redisstore.StateOpen)
			},
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing without mirror")
			health.SetRedisConnected(false)
		} else {
			defer mirror.Close()
			rdb = mirror.Client()
			sinks = append(sinks, refresh.Sink{Name: "redis", SnapshotSink: mirror})
		}
	}

	// ---- Signal alerts ----
	alerter := notification.NewAlerter(notification.AlerterConfig{
		Notifiers: newNotifiers(cfg, log),
		Logger:    log,
		OnDrop:    func(reason string) { prom.AlertsDropped.WithLabelValues(reason).Inc() },
	})
	go alerter.Run(ctx)
	sinks = append(sinks, refresh.Sink{Name: "alerts", SnapshotSink: alerter})

	var rawDB *sql.DB
	if sqlDB != nil {
		rawDB = sqlDB.SQL()
	}
	health.StartLivenessChecker(ctx, rdb, rawDB, 10*time.Second)

	// ---- Refresh loop ----
	svc := refresh.New(refresh.Config{
		Instruments:   cfg.Symbols,
		Timeframes:    cfg.Timeframes,
		Interval:      cfg.RefreshInterval,
		RetentionBars: cfg.RetentionBars,
		HistoryBars:   cfg.HistoryBars,
		Source:        src,
		Store:         st,
		Engine:        strategy.NewEngine(strategy.Default()),
		Sinks:         sinks,
		Metrics:       prom,
		Health:        health,
		Logger:        log,
	})
	if err := svc.Start(ctx); err != nil {
		return err
	}

	// ---- HTTP ----
	srv := api.NewServer(api.NewHandler(api.HandlerConfig{
		Instruments: cfg.Symbols,
		Timeframes:  cfg.Timeframes,
		Store:       st,
		Health:      health,
		Hub:         hub,
		Gatherer:    reg,
	}), api.WithAddr(cfg.HTTPAddr), api.WithLogger(log))
	if err := srv.Start(); err != nil {
		svc.Stop()
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs error
	if err := srv.Stop(shutdownCtx); err != nil {
		errs = errors.Join(errs, err)
	}
	svc.Stop()
	log.Info().Uint64("cycles", svc.Cycles()).Msg("stopped")
	return errs
}

// newNotifiers always logs alerts; webhook and Telegram are opt-in.
func newNotifiers(cfg *config.Config, log zerolog.Logger) []notification.Notifier {
	out := []notification.Notifier{notification.NewLogNotifier(log)}
	if cfg.AlertWebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("telegram alerts disabled")
		} else {
			out = append(out, tg)
		}
	}
	return out
}

// newSource builds the configured data source.
func newSource(cfg *config.Config, db *sqlitestore.DB, log zerolog.Logger) (model.DataSource, error) {
	switch cfg.DataSource {
	case config.SourceSmartAPI:
		instruments, err := smartapi.ParseInstruments(cfg.SymbolTokens)
		if err != nil {
			return nil, fmt.Errorf("SYMBOL_TOKENS: %w", err)
		}
		for _, sym := range cfg.Symbols {
			if _, ok := instruments[sym]; !ok {
				return nil, fmt.Errorf("SYMBOL_TOKENS: no token for %q", sym)
			}
		}
		return smartapi.New(smartapi.Config{
			APIKey:      cfg.AngelAPIKey,
			ClientCode:  cfg.AngelClientCode,
			Password:    cfg.AngelPassword,
			TOTPSecret:  cfg.AngelTOTPSecret,
			Instruments: instruments,
			Logger:      log,
		}), nil
	case config.SourceSQLite:
		if db == nil {
			return nil, errors.New("sqlite source needs SQLITE_PATH")
		}
		return sqlitesource.New(db), nil
	default:
		var opts []mock.Option
		if cfg.MockSeed != 0 {
			opts = append(opts, mock.WithSeed(cfg.MockSeed))
		}
		return mock.New(opts...), nil
	}
}
