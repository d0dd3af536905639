package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Alert is a user-defined rule over a currency pair's rate. Exactly one of
// the two modes is populated: Threshold, or EvolutionRate together with Period.
type Alert struct {
	ID             uuid.UUID
	RecipientName  string
	RecipientEmail string
	BaseCurrency   string
	QuoteCurrency  string
	Threshold      *decimal.Decimal
	EvolutionRate  *decimal.Decimal
	Period         *time.Duration
	StartingValue  decimal.Decimal
	PeriodStart    time.Time
	IsActive       bool
	CreatedAt      time.Time
}

// IsWindowMode reports whether the alert fires on a percentage move within a
// rolling period rather than on an absolute threshold.
func (a *Alert) IsWindowMode() bool {
	return a.Period != nil
}

// IsUpperBound reports whether the alert fires when the rate rises.
func (a *Alert) IsUpperBound() bool {
	if a.EvolutionRate != nil {
		return a.EvolutionRate.Sign() > 0
	}
	return a.Threshold != nil && a.Threshold.GreaterThanOrEqual(a.StartingValue)
}

// Bound returns the rate the current window must cross:
// starting_value * (1 + evolution_rate/100). Only meaningful in window mode.
func (a *Alert) Bound() decimal.Decimal {
	if a.EvolutionRate == nil {
		return decimal.Decimal{}
	}
	return a.StartingValue.Mul(one.Add(a.EvolutionRate.Div(hundred)))
}

// WindowEnd returns the deadline of the current rolling window.
func (a *Alert) WindowEnd() time.Time {
	if a.Period == nil {
		return time.Time{}
	}
	return a.PeriodStart.Add(*a.Period)
}

// Pair renders the alert's currency pair as BASE/QUOTE.
func (a *Alert) Pair() string {
	return a.BaseCurrency + "/" + a.QuoteCurrency
}

// NewAlertParams carries user input for alert creation.
type NewAlertParams struct {
	RecipientName  string
	RecipientEmail string
	BaseCurrency   string
	QuoteCurrency  string
	Threshold      *decimal.Decimal
	EvolutionRate  *decimal.Decimal
	Period         *time.Duration
}

// Validate enforces the creation-time invariants. Alerts that fail here never
// reach the scheduler.
func (p NewAlertParams) Validate() error {
	if p.RecipientEmail == "" {
		return errors.New("a recipient email is required")
	}
	if p.BaseCurrency == "" || p.QuoteCurrency == "" {
		return errors.New("both a base currency and a quote currency are required")
	}
	if p.BaseCurrency == p.QuoteCurrency {
		return errors.New("base currency and quote currency must be different")
	}

	hasThreshold := p.Threshold != nil
	hasEvolution := p.EvolutionRate != nil
	hasPeriod := p.Period != nil

	if hasThreshold && (hasEvolution || hasPeriod) {
		return errors.New("provide either a threshold or an evolution rate/period couple, not both")
	}
	if !hasThreshold && !hasEvolution && !hasPeriod {
		return errors.New("provide at least a threshold or an evolution rate/period couple")
	}
	if hasEvolution != hasPeriod {
		return errors.New("an evolution rate and a period must be provided together")
	}

	if hasThreshold && p.Threshold.Sign() <= 0 {
		return errors.New("the threshold has to be a positive number")
	}
	if hasEvolution {
		if p.EvolutionRate.IsZero() {
			return errors.New("the evolution rate cannot be zero")
		}
		if p.EvolutionRate.LessThan(hundred.Neg()) {
			return errors.New("the evolution rate cannot be lower than -100%")
		}
	}
	if hasPeriod && *p.Period <= 0 {
		return fmt.Errorf("the period must be a positive duration, got %s", *p.Period)
	}

	return nil
}

// NewAlert builds an Alert from validated params and the rate observed at
// creation time.
func NewAlert(p NewAlertParams, startingValue decimal.Decimal, now time.Time) Alert {
	return Alert{
		ID:             uuid.New(),
		RecipientName:  p.RecipientName,
		RecipientEmail: p.RecipientEmail,
		BaseCurrency:   p.BaseCurrency,
		QuoteCurrency:  p.QuoteCurrency,
		Threshold:      p.Threshold,
		EvolutionRate:  p.EvolutionRate,
		Period:         p.Period,
		StartingValue:  startingValue,
		PeriodStart:    now,
		IsActive:       true,
		CreatedAt:      now,
	}
}

// NotificationRecord captures a delivered notification for auditing.
type NotificationRecord struct {
	ID          int64
	AlertID     uuid.UUID
	Recipient   string
	Subject     string
	Attempts    int
	DeliveredAt time.Time
}

// RateSample is one observed pair rate, persisted best-effort per check cycle.
type RateSample struct {
	ObservedAt    time.Time
	BaseCurrency  string
	QuoteCurrency string
	Rate          decimal.Decimal
}
