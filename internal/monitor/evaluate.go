package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"rate-alerts/internal/storage"
)

// Outcome is the decision of one check cycle.
type Outcome int

const (
	// OutcomePending means no match; the alert must be re-armed.
	OutcomePending Outcome = iota
	// OutcomeMatched means the alert fired and becomes terminal.
	OutcomeMatched
	// OutcomeWindowReset means the rolling window elapsed without a match
	// and must restart from the current rate.
	OutcomeWindowReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeWindowReset:
		return "window_reset"
	default:
		return "pending"
	}
}

// Evaluate decides the outcome for an alert given the current base/quote rate.
// Comparisons are asymmetric: upper-bound matches use strict >, lower-bound
// matches use <= in window mode and < in threshold mode.
func Evaluate(alert *storage.Alert, rate decimal.Decimal, now time.Time) Outcome {
	if !alert.IsWindowMode() {
		if alert.Threshold == nil {
			return OutcomePending
		}
		if alert.IsUpperBound() {
			if rate.GreaterThan(*alert.Threshold) {
				return OutcomeMatched
			}
		} else if rate.LessThan(*alert.Threshold) {
			return OutcomeMatched
		}
		return OutcomePending
	}

	// The bound condition is checked before the window deadline: a rate that
	// satisfies the bound in the same cycle the window expires still matches.
	bound := alert.Bound()
	var matched bool
	if alert.IsUpperBound() {
		matched = rate.GreaterThan(bound)
	} else {
		matched = rate.LessThanOrEqual(bound)
	}
	if matched {
		return OutcomeMatched
	}

	if !now.Before(alert.WindowEnd()) {
		return OutcomeWindowReset
	}
	return OutcomePending
}
