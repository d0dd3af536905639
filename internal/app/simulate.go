package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"rate-alerts/internal/monitor"
	"rate-alerts/internal/rates"
	"rate-alerts/internal/storage"
)

// Simulate evaluates a hypothetical alert definition against given USD
// prices without touching the store or the real feed.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	params, err := buildParams(CreateOptions{
		RecipientEmail: "simulated@localhost",
		BaseCurrency:   opts.BaseCurrency,
		QuoteCurrency:  opts.QuoteCurrency,
		Threshold:      opts.Threshold,
		EvolutionRate:  opts.EvolutionRate,
		Period:         opts.Period,
	})
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}

	basePrice, err := decimal.NewFromString(opts.BasePriceUSD)
	if err != nil {
		return fmt.Errorf("invalid base price: %w", err)
	}
	quotePrice, err := decimal.NewFromString(opts.QuotePriceUSD)
	if err != nil {
		return fmt.Errorf("invalid quote price: %w", err)
	}
	startingValue, err := decimal.NewFromString(opts.StartingValue)
	if err != nil {
		return fmt.Errorf("invalid starting value: %w", err)
	}

	source := &staticPriceSource{prices: map[string]decimal.Decimal{
		params.BaseCurrency:  basePrice,
		params.QuoteCurrency: quotePrice,
	}}
	cache := rates.NewCache(source, a.Logger)

	if err := cache.Refresh(ctx, params.BaseCurrency, params.QuoteCurrency); err != nil {
		return err
	}
	rate, ok := cache.Rate(params.BaseCurrency, params.QuoteCurrency)
	if !ok {
		return fmt.Errorf("could not derive %s/%s rate from the given prices", params.BaseCurrency, params.QuoteCurrency)
	}

	now := time.Now().UTC()
	alert := storage.NewAlert(params, startingValue, now)
	outcome := monitor.Evaluate(&alert, rate, now)

	fmt.Fprintf(os.Stdout, "pair:     %s\n", alert.Pair())
	fmt.Fprintf(os.Stdout, "rate:     %s\n", rate.String())
	if alert.IsWindowMode() {
		fmt.Fprintf(os.Stdout, "bound:    %s\n", alert.Bound().String())
	}
	fmt.Fprintf(os.Stdout, "outcome:  %s\n", outcome)
	return nil
}

type staticPriceSource struct {
	prices map[string]decimal.Decimal
}

func (s *staticPriceSource) FetchPrices(_ context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(currencies))
	for _, code := range currencies {
		if price, ok := s.prices[code]; ok {
			out[code] = price
		}
	}
	return out, nil
}
