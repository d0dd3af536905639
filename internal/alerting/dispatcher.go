package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rate-alerts/internal/storage"
)

// RetryPolicy controls redelivery of failed notifications.
type RetryPolicy struct {
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
	// MaxAttempts bounds the number of attempts per sink; zero retries
	// forever.
	MaxAttempts int
}

// DefaultRetryPolicy matches the engine's delivery contract: retry the same
// send every ten minutes until it succeeds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: 10 * time.Minute}
}

// Dispatcher fans a fired alert out to every configured sink, retrying each
// sink independently so a flaky channel never causes a duplicate delivery on
// a healthy one.
type Dispatcher struct {
	notifiers []Notifier
	policy    RetryPolicy
	audit     storage.NotificationStore
	logger    zerolog.Logger
}

// NewDispatcher constructs a dispatcher. audit may be nil to skip the
// delivered-notification log.
func NewDispatcher(notifiers []Notifier, policy RetryPolicy, audit storage.NotificationStore, logger zerolog.Logger) *Dispatcher {
	if policy.Backoff <= 0 {
		policy.Backoff = 10 * time.Minute
	}
	return &Dispatcher{
		notifiers: notifiers,
		policy:    policy,
		audit:     audit,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch delivers the notification for a matched alert. It blocks until
// every sink has accepted the message, retries are exhausted, or ctx is
// cancelled. The alert is already inactive, so however long this takes, the
// alert is never re-evaluated because of it.
func (d *Dispatcher) Dispatch(ctx context.Context, alert storage.Alert) error {
	if len(d.notifiers) == 0 {
		return errors.New("no notification sinks configured")
	}

	note := NewNotification(alert, time.Now().UTC())
	delivered := make([]bool, len(d.notifiers))
	attempts := 0

	for {
		attempts++
		var lastErr error
		for i, notifier := range d.notifiers {
			if delivered[i] {
				continue
			}
			if err := notifier.Notify(ctx, note); err != nil {
				lastErr = err
				d.logger.Warn().Err(err).
					Stringer("alert_id", alert.ID).
					Str("sink", notifier.Name()).
					Int("attempt", attempts).
					Msg("notification delivery failed")
				continue
			}
			delivered[i] = true
		}

		if lastErr == nil {
			d.recordDelivery(ctx, note, attempts)
			return nil
		}

		if d.policy.MaxAttempts > 0 && attempts >= d.policy.MaxAttempts {
			return fmt.Errorf("notification for alert %s abandoned after %d attempts: %w", alert.ID, attempts, lastErr)
		}

		timer := time.NewTimer(d.policy.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) recordDelivery(ctx context.Context, note Notification, attempts int) {
	d.logger.Info().Stringer("alert_id", note.AlertID).Int("attempts", attempts).Msg("notification delivered")

	if d.audit == nil {
		return
	}

	rec := storage.NotificationRecord{
		AlertID:     note.AlertID,
		Recipient:   note.RecipientEmail,
		Subject:     note.Subject(),
		Attempts:    attempts,
		DeliveredAt: time.Now().UTC(),
	}
	if _, err := d.audit.InsertNotification(ctx, rec); err != nil {
		d.logger.Error().Err(err).Stringer("alert_id", note.AlertID).Msg("failed to record delivered notification")
	}
}
