package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type webhookPayload struct {
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Signal  *signalFields `json:"signal,omitempty"`
	TS      string        `json:"ts"`
}

type signalFields struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Timeframe  int     `json:"timeframe"`
	Strategy   string  `json:"strategy"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		TS:      w.now().Format(time.RFC3339Nano),
	}
	if s := alert.Signal; s != nil {
		p.Signal = &signalFields{
			ID:         s.ID,
			Symbol:     s.Instrument,
			Timeframe:  s.Timeframe,
			Strategy:   s.Strategy,
			Direction:  string(s.Direction),
			Confidence: s.Confidence,
		}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
