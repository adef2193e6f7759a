// Package refresh runs the periodic poll → compute → publish loop.
//
// Each cycle fetches the account posture, then for every configured
// instrument and timeframe fetches the latest tick and a trailing bar window,
// computes indicators, runs the signal engine and replaces the pair's
// snapshot in the state store. The loop is the store's only writer and never
// overlaps cycles: the inter-cycle sleep starts after a cycle completes.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/indicator"
	"signal-engine/internal/logger"
	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
	"signal-engine/internal/store"
	"signal-engine/internal/strategy"
)

// Sink is a named downstream consumer of published snapshots.
type Sink struct {
	Name string
	model.SnapshotSink
}

// Config holds the loop's dependencies and tuning.
type Config struct {
	Instruments   []string
	Timeframes    []int
	Interval      time.Duration
	RetentionBars int // bars kept in each snapshot
	HistoryBars   int // bars fetched per pair

	Source  model.DataSource
	Store   *store.Store
	Engine  *strategy.Engine
	Sinks   []Sink
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Logger  zerolog.Logger
	Clock   func() time.Time
}

// Service owns the refresh loop lifecycle.
type Service struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	seq    atomic.Uint64 // cycles started; stamped on snapshots
	cycles atomic.Uint64 // cycles completed
}

// New creates a stopped Service.
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Engine == nil {
		cfg.Engine = strategy.NewEngine(strategy.Default(), strategy.WithClock(cfg.Clock))
	}
	if cfg.Health == nil {
		cfg.Health = metrics.NewHealthStatus()
	}
	return &Service{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "refresh").Logger(),
	}
}

// Start connects the data source and launches the loop. It is a no-op while
// the loop is running. A connection failure is returned and the loop does
// not start. The loop runs until Stop is called or ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.cfg.Source.Connect(ctx); err != nil {
		s.cfg.Health.SetSourceConnected(false)
		return fmt.Errorf("connect data source: %w", err)
	}
	s.cfg.Health.SetSourceConnected(true)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)

	s.log.Info().
		Int("instruments", len(s.cfg.Instruments)).
		Ints("timeframes", s.cfg.Timeframes).
		Dur("interval", s.cfg.Interval).
		Msg("refresh loop started")
	return nil
}

// Stop cancels the in-flight cycle, waits for the loop to exit and
// disconnects the data source. It is a no-op while stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false

	if err := s.cfg.Source.Disconnect(); err != nil {
		s.log.Warn().Err(err).Msg("data source disconnect failed")
	}
	s.cfg.Health.SetSourceConnected(false)
	s.log.Info().Uint64("cycles", s.cycles.Load()).Msg("refresh loop stopped")
}

// Running reports whether the loop has been started and not yet stopped.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Cycles returns the number of completed cycles.
func (s *Service) Cycles() uint64 {
	return s.cycles.Load()
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		s.runOnce(ctx)

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runOnce executes one refresh cycle. It returns early, leaving already
// published snapshots in place, when ctx is cancelled. Only the loop
// goroutine calls it, so there is a single store writer.
func (s *Service) runOnce(ctx context.Context) {
	start := s.cfg.Clock()
	cycle := s.seq.Add(1)
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("cycle", start))
	log := logger.FromContext(ctx, s.log).With().Uint64("cycle", cycle).Logger()

	s.refreshAccount(ctx, log)

	published := 0
	for _, inst := range s.cfg.Instruments {
		if ctx.Err() != nil {
			log.Debug().Msg("cycle cancelled")
			return
		}
		tick := s.fetchTick(ctx, log, inst)

		for _, tf := range s.cfg.Timeframes {
			if ctx.Err() != nil {
				log.Debug().Msg("cycle cancelled")
				return
			}
			if s.refreshPair(ctx, log, cycle, model.Key{Instrument: inst, Timeframe: tf}, tick) {
				published++
			}
		}
	}
	if ctx.Err() != nil {
		log.Debug().Msg("cycle cancelled")
		return
	}

	end := s.cfg.Clock()
	dur := end.Sub(start)
	s.cycles.Add(1)
	s.cfg.Health.RecordCycle(end, dur)
	if m := s.cfg.Metrics; m != nil {
		m.CyclesTotal.Inc()
		m.CycleDuration.Observe(dur.Seconds())
		m.LastCycleTime.Set(float64(end.Unix()))
	}
	log.Debug().Int("published", published).Dur("took", dur).Msg("cycle complete")
}

func (s *Service) refreshAccount(ctx context.Context, log zerolog.Logger) {
	acct, err := s.cfg.Source.AccountInfo(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.sourceError("account")
			log.Warn().Err(err).Msg("account fetch failed")
		}
		return
	}
	if acct == nil {
		return
	}
	s.cfg.Store.UpdateAccount(*acct)

	for _, sink := range s.cfg.Sinks {
		as, ok := sink.SnapshotSink.(model.AccountSink)
		if !ok {
			continue
		}
		if err := as.PublishAccount(ctx, *acct); err != nil {
			if m := s.cfg.Metrics; m != nil {
				m.SinkErrors.WithLabelValues(sink.Name).Inc()
			}
			log.Warn().Err(err).Str("sink", sink.Name).Msg("account publish failed")
		}
	}
}

func (s *Service) fetchTick(ctx context.Context, log zerolog.Logger, instrument string) model.OptionalFloat {
	tick, err := s.cfg.Source.LatestTick(ctx, instrument)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.sourceError("tick")
			log.Warn().Err(err).Str("instrument", instrument).Msg("tick fetch failed")
		}
		return model.None()
	}
	return tick
}

// refreshPair rebuilds and publishes one key's snapshot. It reports whether
// a snapshot was written.
func (s *Service) refreshPair(ctx context.Context, log zerolog.Logger, cycle uint64, key model.Key, tick model.OptionalFloat) bool {
	bars, err := s.cfg.Source.Bars(ctx, key.Instrument, key.Timeframe, s.cfg.HistoryBars)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		s.sourceError("bars")
		s.skip("error")
		log.Warn().Err(err).Str("pair", key.String()).Msg("bars fetch failed, skipping")
		return false
	}
	if len(bars) == 0 {
		s.skip("empty")
		log.Debug().Str("pair", key.String()).Msg("no bars, skipping")
		return false
	}
	// The source may hand out a cached slice; sort a private copy.
	bars = model.Trailing(bars, len(bars))
	if !model.SortBars(bars) {
		log.Debug().Str("pair", key.String()).Msg("bars arrived out of order")
	}

	ind := indicator.Compute(model.Closes(bars))
	signals := s.cfg.Engine.Evaluate(key.Instrument, key.Timeframe, bars, ind)

	snap := model.MarketSnapshot{
		LastPrice:  tick,
		Bars:       model.Trailing(bars, s.cfg.RetentionBars),
		Indicators: ind,
		Signals:    signals,
		Cycle:      cycle,
		UpdatedAt:  s.cfg.Clock(),
	}
	if err := s.cfg.Store.Update(key, snap); err != nil {
		s.skip("store")
		log.Error().Err(err).Str("pair", key.String()).Msg("store update rejected")
		return false
	}

	if m := s.cfg.Metrics; m != nil {
		m.SnapshotsPublished.Inc()
		for _, sig := range signals {
			m.SignalsTotal.WithLabelValues(sig.Strategy, string(sig.Direction)).Inc()
		}
	}

	for _, sink := range s.cfg.Sinks {
		if err := sink.PublishSnapshot(ctx, key, snap); err != nil {
			if m := s.cfg.Metrics; m != nil {
				m.SinkErrors.WithLabelValues(sink.Name).Inc()
			}
			log.Warn().Err(err).Str("sink", sink.Name).Str("pair", key.String()).Msg("sink publish failed")
		}
	}
	return true
}

func (s *Service) skip(reason string) {
	if m := s.cfg.Metrics; m != nil {
		m.PairsSkipped.WithLabelValues(reason).Inc()
	}
}

func (s *Service) sourceError(op string) {
	if m := s.cfg.Metrics; m != nil {
		m.SourceErrors.WithLabelValues(op).Inc()
	}
}
