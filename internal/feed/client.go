package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const assetsPath = "/assets"

// PriceSource retrieves current USD prices for a set of currencies.
type PriceSource interface {
	FetchPrices(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error)
}

// Error is returned when the feed answers with a non-2xx status.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("feed error (%d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("feed error (%d)", e.StatusCode)
}

// Options parameterise the feed client.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the external price feed over HTTP.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a feed client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type asset struct {
	AssetID  string           `json:"asset_id"`
	PriceUSD *decimal.Decimal `json:"price_usd"`
}

// FetchPrices returns the current USD price of each requested currency. The
// feed always answers with its full asset list; everything not requested is
// discarded. Currencies the feed does not quote in USD are simply absent from
// the result.
func (c *Client) FetchPrices(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	assets, err := c.fetchAssets(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(currencies))
	for _, code := range currencies {
		wanted[code] = struct{}{}
	}

	prices := make(map[string]decimal.Decimal, len(currencies))
	for _, a := range assets {
		if _, ok := wanted[a.AssetID]; !ok {
			continue
		}
		if a.PriceUSD == nil {
			continue
		}
		prices[a.AssetID] = *a.PriceUSD
	}

	return prices, nil
}

// ListAssets returns every currency code the feed quotes a USD price for.
func (c *Client) ListAssets(ctx context.Context) ([]string, error) {
	assets, err := c.fetchAssets(ctx)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.PriceUSD == nil {
			continue
		}
		codes = append(codes, a.AssetID)
	}
	return codes, nil
}

func (c *Client) fetchAssets(ctx context.Context) ([]asset, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("feed base url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+assetsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if c.opts.APIKey != "" {
		req.Header.Set("X-CoinAPI-Key", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send feed request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var assets []asset
	if err := json.Unmarshal(payload, &assets); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	return assets, nil
}

var _ PriceSource = (*Client)(nil)
