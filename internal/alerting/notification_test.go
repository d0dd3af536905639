package alerting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"rate-alerts/internal/storage"
)

func TestNotificationTextThresholdUpwards(t *testing.T) {
	threshold := decimal.NewFromInt(50000)
	alert := storage.Alert{
		ID:             uuid.New(),
		RecipientName:  "Ada",
		RecipientEmail: "ada@example.com",
		BaseCurrency:   "BTC",
		QuoteCurrency:  "USD",
		Threshold:      &threshold,
		StartingValue:  decimal.NewFromInt(40000),
	}

	note := NewNotification(alert, time.Now())
	assert.Equal(t, "New alert: BTC/USD", note.Subject())
	assert.Equal(t,
		"Hello Ada, the exchange rate of BTC/USD has met a threshold of 50000 moving upwards.",
		note.Text())
}

func TestNotificationTextThresholdDownwards(t *testing.T) {
	threshold := decimal.NewFromInt(30000)
	alert := storage.Alert{
		RecipientName: "Ada",
		BaseCurrency:  "BTC",
		QuoteCurrency: "USD",
		Threshold:     &threshold,
		StartingValue: decimal.NewFromInt(40000),
	}

	note := NewNotification(alert, time.Now())
	assert.Equal(t,
		"Hello Ada, the exchange rate of BTC/USD has met a threshold of 30000 moving downwards.",
		note.Text())
}

func TestNotificationTextWindow(t *testing.T) {
	evolution := decimal.NewFromInt(5)
	period := time.Hour
	alert := storage.Alert{
		RecipientName: "Grace",
		BaseCurrency:  "ETH",
		QuoteCurrency: "BTC",
		EvolutionRate: &evolution,
		Period:        &period,
		StartingValue: decimal.NewFromInt(100),
	}

	note := NewNotification(alert, time.Now())
	assert.Equal(t,
		"Hello Grace, the exchange rate of ETH/BTC has moved more than 5% in less than 1h0m0s.",
		note.Text())
}

func TestNotificationTextFallsBackToEmail(t *testing.T) {
	threshold := decimal.NewFromInt(1)
	alert := storage.Alert{
		RecipientEmail: "ops@example.com",
		BaseCurrency:   "EUR",
		QuoteCurrency:  "USD",
		Threshold:      &threshold,
	}

	note := NewNotification(alert, time.Now())
	assert.Contains(t, note.Text(), "Hello ops@example.com,")
}

func TestNotificationHTMLEscapes(t *testing.T) {
	threshold := decimal.NewFromInt(1)
	alert := storage.Alert{
		RecipientName: "<script>",
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Threshold:     &threshold,
	}

	html := NewNotification(alert, time.Now()).HTML()
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}
