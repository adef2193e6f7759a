// Package notification delivers signal alerts to external channels
// (webhook, Telegram). An Alerter sits in the refresh loop's sink chain and
// raises an alert whenever a rule starts firing for a pair.
package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"signal-engine/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Signal  *model.Signal `json:"signal,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a logger (useful for development).
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.log.Info().Str("level", string(alert.Level)).Str("title", alert.Title).Msg(alert.Message)
	return nil
}

// firing identifies one active rule outcome on a pair.
type firing struct {
	strategy  string
	direction model.Direction
}

// AlerterConfig configures an Alerter.
type AlerterConfig struct {
	Notifiers []Notifier
	QueueSize int // default 256
	Logger    zerolog.Logger
	// OnDrop is called when the queue is full or a notifier fails.
	OnDrop func(reason string)
}

// Alerter is a model.SnapshotSink that turns rising signal edges into
// alerts. Delivery happens on Run's goroutine so a slow notifier never
// delays the refresh loop.
type Alerter struct {
	cfg   AlerterConfig
	log   zerolog.Logger
	queue chan Alert

	mu     sync.Mutex
	active map[model.Key]map[firing]bool
}

// NewAlerter creates an Alerter. Call Run to start delivery.
func NewAlerter(cfg AlerterConfig) *Alerter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.OnDrop == nil {
		cfg.OnDrop = func(string) {}
	}
	return &Alerter{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "alerter").Logger(),
		queue:  make(chan Alert, cfg.QueueSize),
		active: make(map[model.Key]map[firing]bool),
	}
}

// PublishSnapshot queues an alert for every signal that was not firing on
// the previous snapshot of the same pair.
func (a *Alerter) PublishSnapshot(_ context.Context, key model.Key, snap model.MarketSnapshot) error {
	now := make(map[firing]bool, len(snap.Signals))
	var rising []model.Signal

	a.mu.Lock()
	prev := a.active[key]
	for _, sig := range snap.Signals {
		f := firing{strategy: sig.Strategy, direction: sig.Direction}
		if now[f] {
			continue
		}
		now[f] = true
		if !prev[f] {
			rising = append(rising, sig.Clone())
		}
	}
	a.active[key] = now
	a.mu.Unlock()

	for i := range rising {
		sig := rising[i]
		alert := Alert{
			Level: AlertInfo,
			Title: fmt.Sprintf("%s %s %s", sig.Instrument, formatTF(sig.Timeframe), sig.Direction),
			Message: fmt.Sprintf("%s fired at %s (confidence %.2f)",
				sig.Strategy, snap.LastPrice, sig.Confidence),
			Signal: &sig,
		}
		select {
		case a.queue <- alert:
		default:
			a.cfg.OnDrop("queue_full")
			a.log.Warn().Str("pair", key.String()).Str("strategy", sig.Strategy).Msg("alert queue full, dropping")
		}
	}
	return nil
}

// Run delivers queued alerts until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-a.queue:
			for _, n := range a.cfg.Notifiers {
				if err := n.Send(ctx, alert); err != nil {
					a.cfg.OnDrop("send_failed")
					a.log.Warn().Err(err).Str("title", alert.Title).Msg("alert delivery failed")
				}
			}
		}
	}
}

func formatTF(minutes int) string {
	switch {
	case minutes >= 1440 && minutes%1440 == 0:
		return fmt.Sprintf("D%d", minutes/1440)
	case minutes >= 60 && minutes%60 == 0:
		return fmt.Sprintf("H%d", minutes/60)
	default:
		return fmt.Sprintf("M%d", minutes)
	}
}
