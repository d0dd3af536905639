package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"rate-alerts/internal/storage"
)

// Create validates a new alert definition, captures the starting rate from
// the feed, and persists it. The running monitoring service picks it up on
// its next recovery sweep.
func (a *App) Create(ctx context.Context, opts CreateOptions) error {
	params, err := buildParams(opts)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}

	client := a.newFeed()

	supported, err := client.ListAssets(ctx)
	if err != nil {
		return fmt.Errorf("list supported currencies: %w", err)
	}
	if err := checkSupported(supported, params.BaseCurrency); err != nil {
		return err
	}
	if err := checkSupported(supported, params.QuoteCurrency); err != nil {
		return err
	}

	prices, err := client.FetchPrices(ctx, []string{params.BaseCurrency, params.QuoteCurrency})
	if err != nil {
		return fmt.Errorf("fetch starting rate: %w", err)
	}

	basePrice, baseOK := prices[params.BaseCurrency]
	quotePrice, quoteOK := prices[params.QuoteCurrency]
	if !baseOK || !quoteOK || quotePrice.IsZero() {
		return fmt.Errorf("feed returned no usable USD prices for %s/%s", params.BaseCurrency, params.QuoteCurrency)
	}
	startingValue := basePrice.Div(quotePrice)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	alert := storage.NewAlert(params, startingValue, time.Now().UTC())
	if err := store.CreateAlert(ctx, alert); err != nil {
		return err
	}

	a.Logger.Info().
		Stringer("alert_id", alert.ID).
		Str("pair", alert.Pair()).
		Str("starting_value", startingValue.String()).
		Msg("alert created")

	fmt.Fprintf(os.Stdout, "created alert %s (%s, starting value %s)\n", alert.ID, alert.Pair(), startingValue.String())
	return nil
}

func buildParams(opts CreateOptions) (storage.NewAlertParams, error) {
	params := storage.NewAlertParams{
		RecipientName:  opts.RecipientName,
		RecipientEmail: opts.RecipientEmail,
		BaseCurrency:   opts.BaseCurrency,
		QuoteCurrency:  opts.QuoteCurrency,
	}

	if opts.Threshold != "" {
		threshold, err := decimal.NewFromString(opts.Threshold)
		if err != nil {
			return storage.NewAlertParams{}, fmt.Errorf("invalid threshold: %w", err)
		}
		params.Threshold = &threshold
	}

	if opts.EvolutionRate != "" {
		evolution, err := decimal.NewFromString(opts.EvolutionRate)
		if err != nil {
			return storage.NewAlertParams{}, fmt.Errorf("invalid evolution rate: %w", err)
		}
		params.EvolutionRate = &evolution
	}

	if opts.Period > 0 {
		period := opts.Period
		params.Period = &period
	}

	return params, nil
}

func checkSupported(supported []string, currency string) error {
	for _, code := range supported {
		if code == currency {
			return nil
		}
	}
	return fmt.Errorf("currency %s is not quoted in USD by the feed", currency)
}
