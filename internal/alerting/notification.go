// Package alerting delivers fired-alert notifications through the configured
// sinks, retrying on transient failure.
package alerting

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rate-alerts/internal/storage"
)

// Notification carries everything a sink needs to describe a fired alert.
type Notification struct {
	AlertID        uuid.UUID
	RecipientName  string
	RecipientEmail string
	BaseCurrency   string
	QuoteCurrency  string
	Threshold      *decimal.Decimal
	EvolutionRate  *decimal.Decimal
	Period         *time.Duration
	UpperBound     bool
	FiredAt        time.Time
}

// Notifier is a single delivery sink.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, note Notification) error
}

// NewNotification builds a Notification from a matched alert.
func NewNotification(alert storage.Alert, firedAt time.Time) Notification {
	return Notification{
		AlertID:        alert.ID,
		RecipientName:  alert.RecipientName,
		RecipientEmail: alert.RecipientEmail,
		BaseCurrency:   alert.BaseCurrency,
		QuoteCurrency:  alert.QuoteCurrency,
		Threshold:      alert.Threshold,
		EvolutionRate:  alert.EvolutionRate,
		Period:         alert.Period,
		UpperBound:     alert.IsUpperBound(),
		FiredAt:        firedAt,
	}
}

// Pair renders the currency pair as BASE/QUOTE.
func (n Notification) Pair() string {
	return n.BaseCurrency + "/" + n.QuoteCurrency
}

// Subject is the notification title.
func (n Notification) Subject() string {
	return fmt.Sprintf("New alert: %s", n.Pair())
}

// Text describes which bound was crossed, addressed to the alert owner.
func (n Notification) Text() string {
	name := n.RecipientName
	if name == "" {
		name = n.RecipientEmail
	}

	msg := fmt.Sprintf("Hello %s, the exchange rate of %s has ", name, n.Pair())
	if n.Period != nil && n.EvolutionRate != nil {
		return msg + fmt.Sprintf("moved more than %s%% in less than %s.", n.EvolutionRate.String(), n.Period.String())
	}

	threshold := ""
	if n.Threshold != nil {
		threshold = n.Threshold.String()
	}
	msg += fmt.Sprintf("met a threshold of %s moving ", threshold)
	if n.UpperBound {
		return msg + "upwards."
	}
	return msg + "downwards."
}

// HTML is the rich variant of Text.
func (n Notification) HTML() string {
	return fmt.Sprintf(
		"<html><body><h2>%s</h2><p>%s</p></body></html>",
		html.EscapeString(n.Subject()),
		html.EscapeString(n.Text()),
	)
}
