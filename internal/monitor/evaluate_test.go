package monitor

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rate-alerts/internal/storage"
)

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func decPtr(t *testing.T, v string) *decimal.Decimal {
	t.Helper()
	d := dec(t, v)
	return &d
}

func thresholdAlert(t *testing.T, threshold, starting string) storage.Alert {
	t.Helper()
	return storage.Alert{
		ID:            uuid.New(),
		BaseCurrency:  "BTC",
		QuoteCurrency: "USD",
		Threshold:     decPtr(t, threshold),
		StartingValue: dec(t, starting),
		IsActive:      true,
	}
}

func windowAlert(t *testing.T, evolution, starting string, period time.Duration, periodStart time.Time) storage.Alert {
	t.Helper()
	return storage.Alert{
		ID:            uuid.New(),
		BaseCurrency:  "ETH",
		QuoteCurrency: "BTC",
		EvolutionRate: decPtr(t, evolution),
		Period:        &period,
		StartingValue: dec(t, starting),
		PeriodStart:   periodStart,
		IsActive:      true,
	}
}

func TestEvaluateThresholdUpperBound(t *testing.T) {
	// threshold above starting value watches for a rise
	alert := thresholdAlert(t, "50000", "40000")
	require.True(t, alert.IsUpperBound())

	now := time.Now()
	assert.Equal(t, OutcomeMatched, Evaluate(&alert, dec(t, "51000"), now))
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "49000"), now))
	// upper-bound comparison is strict
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "50000"), now))
}

func TestEvaluateThresholdLowerBound(t *testing.T) {
	alert := thresholdAlert(t, "100", "120")
	require.False(t, alert.IsUpperBound())

	now := time.Now()
	assert.Equal(t, OutcomeMatched, Evaluate(&alert, dec(t, "99"), now))
	// lower-bound threshold comparison is strict as well
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "100"), now))
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "101"), now))
}

func TestEvaluateWindowPendingInsideWindow(t *testing.T) {
	start := time.Now().Add(-30 * time.Minute)
	alert := windowAlert(t, "5", "100", time.Hour, start)
	require.True(t, alert.IsUpperBound())
	require.True(t, dec(t, "105").Equal(alert.Bound()))

	// 104 does not exceed the 105 bound
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "104"), start.Add(30*time.Minute)))
	// the bound itself does not match either: upper bound is strict
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "105"), start.Add(30*time.Minute)))
	assert.Equal(t, OutcomeMatched, Evaluate(&alert, dec(t, "105.01"), start.Add(30*time.Minute)))
}

func TestEvaluateWindowLowerBoundInclusive(t *testing.T) {
	start := time.Now()
	alert := windowAlert(t, "-5", "100", time.Hour, start)
	require.False(t, alert.IsUpperBound())
	require.True(t, dec(t, "95").Equal(alert.Bound()))

	// hitting the bound exactly matches on the way down
	assert.Equal(t, OutcomeMatched, Evaluate(&alert, dec(t, "95"), start.Add(time.Minute)))
	assert.Equal(t, OutcomeMatched, Evaluate(&alert, dec(t, "94"), start.Add(time.Minute)))
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "95.01"), start.Add(time.Minute)))
}

func TestEvaluateWindowReset(t *testing.T) {
	start := time.Now().Add(-62 * time.Minute)
	alert := windowAlert(t, "5", "100", time.Hour, start)

	// past the deadline without a match: the window restarts
	assert.Equal(t, OutcomeWindowReset, Evaluate(&alert, dec(t, "102"), time.Now()))
}

func TestEvaluateMatchWinsOverWindowReset(t *testing.T) {
	start := time.Now().Add(-2 * time.Hour)
	alert := windowAlert(t, "5", "100", time.Hour, start)

	// bound satisfied in the same cycle the window expired: match takes priority
	assert.Equal(t, OutcomeMatched, Evaluate(&alert, dec(t, "106"), time.Now()))
}

func TestEvaluateExactlyAtWindowDeadline(t *testing.T) {
	start := time.Now()
	period := time.Hour
	alert := windowAlert(t, "5", "100", period, start)

	// now == period_start + period counts as past the window
	assert.Equal(t, OutcomeWindowReset, Evaluate(&alert, dec(t, "104"), start.Add(period)))
	assert.Equal(t, OutcomePending, Evaluate(&alert, dec(t, "104"), start.Add(period-time.Second)))
}

func TestIsUpperBoundDerivation(t *testing.T) {
	up := thresholdAlert(t, "100", "100")
	assert.True(t, up.IsUpperBound(), "threshold equal to starting value watches upwards")

	down := thresholdAlert(t, "99.99", "100")
	assert.False(t, down.IsUpperBound())

	rising := windowAlert(t, "0.5", "100", time.Hour, time.Now())
	assert.True(t, rising.IsUpperBound())

	falling := windowAlert(t, "-0.5", "100", time.Hour, time.Now())
	assert.False(t, falling.IsUpperBound())
}
