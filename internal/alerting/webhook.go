package alerting

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier posts fired alerts to a generic HTTP webhook. If secret is
// non-empty, requests are signed with HMAC-SHA256.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier constructs the webhook sink.
func NewWebhookNotifier(url, secret string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// Name identifies the sink.
func (w *WebhookNotifier) Name() string { return "webhook" }

type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Alert     struct {
		ID            string `json:"id"`
		Pair          string `json:"pair"`
		Threshold     string `json:"threshold,omitempty"`
		EvolutionRate string `json:"evolution_rate,omitempty"`
		PeriodSeconds int64  `json:"period_seconds,omitempty"`
		Direction     string `json:"direction"`
		Message       string `json:"message"`
	} `json:"alert"`
}

// Notify posts the fired alert as JSON.
func (w *WebhookNotifier) Notify(ctx context.Context, note Notification) error {
	payload := webhookPayload{
		Event:     "alert_fired",
		Timestamp: note.FiredAt.UTC().Format(time.RFC3339),
	}
	payload.Alert.ID = note.AlertID.String()
	payload.Alert.Pair = note.Pair()
	payload.Alert.Message = note.Text()
	if note.Threshold != nil {
		payload.Alert.Threshold = note.Threshold.String()
	}
	if note.EvolutionRate != nil {
		payload.Alert.EvolutionRate = note.EvolutionRate.String()
	}
	if note.Period != nil {
		payload.Alert.PeriodSeconds = int64(note.Period.Seconds())
	}
	if note.UpperBound {
		payload.Alert.Direction = "up"
	} else {
		payload.Alert.Direction = "down"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ratewatcher/1.0")

	if w.secret != "" {
		mac := hmac.New(sha256.New, []byte(w.secret))
		mac.Write(body)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	w.logger.Info().Stringer("alert_id", note.AlertID).Msg("notification posted")
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
