// Package rates holds the shared mapping from currency code to the latest
// known USD price. The cache is populated lazily: only currencies referenced
// by an alert under evaluation are ever fetched.
package rates

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rate-alerts/internal/feed"
)

// Cache is a process-wide, last-write-wins price map. It is safe for
// concurrent use by independent check cycles; writes are independent per
// currency key.
type Cache struct {
	source feed.PriceSource
	logger zerolog.Logger

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewCache constructs a cache backed by the given price source.
func NewCache(source feed.PriceSource, logger zerolog.Logger) *Cache {
	return &Cache{
		source: source,
		logger: logger.With().Str("component", "rate_cache").Logger(),
		prices: make(map[string]decimal.Decimal),
	}
}

// Refresh fetches current USD prices for the given currencies and upserts
// them into the shared mapping. On error the mapping is left unchanged, so
// previously cached values stay available.
func (c *Cache) Refresh(ctx context.Context, currencies ...string) error {
	fetched, err := c.source.FetchPrices(ctx, currencies)
	if err != nil {
		return fmt.Errorf("refresh rates: %w", err)
	}

	c.mu.Lock()
	for code, price := range fetched {
		c.prices[code] = price
	}
	c.mu.Unlock()

	c.logger.Debug().Int("fetched", len(fetched)).Strs("currencies", currencies).Msg("rate cache refreshed")
	return nil
}

// Price returns the last known USD price of a currency. A currency never
// fetched reports false; callers must treat that as a hard precondition
// failure, never as zero.
func (c *Cache) Price(currency string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[currency]
	return price, ok
}

// Rate derives price(base)/price(quote). It reports false when either price
// is unknown or the quote price is zero.
func (c *Cache) Rate(base, quote string) (decimal.Decimal, bool) {
	c.mu.RLock()
	basePrice, baseOK := c.prices[base]
	quotePrice, quoteOK := c.prices[quote]
	c.mu.RUnlock()

	if !baseOK || !quoteOK || quotePrice.IsZero() {
		return decimal.Decimal{}, false
	}
	return basePrice.Div(quotePrice), true
}
