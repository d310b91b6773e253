// Package coingecko is a minimal client for CoinGecko-compatible BTC price
// endpoints: the live simple/price endpoint and the per-day history endpoint.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// historyDateLayout is the dd-mm-yyyy form the history endpoint expects.
const historyDateLayout = "02-01-2006"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 256

// Client talks to one CoinGecko-compatible base URL.
type Client struct {
	baseURL    string
	apiKey     string
	coinID     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as the x_cg_demo_api_key query parameter.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for baseURL, e.g.
// "https://api.coingecko.com/api/v3". timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		coinID:     "bitcoin",
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type simplePriceResponse map[string]map[string]*decimal.Decimal

// SpotPrice returns the current BTC price in currency.
func (c *Client) SpotPrice(ctx context.Context, currency string) (decimal.Decimal, error) {
	vs := strings.ToLower(currency)
	params := url.Values{}
	params.Set("ids", c.coinID)
	params.Set("vs_currencies", vs)
	if c.apiKey != "" {
		params.Set("x_cg_demo_api_key", c.apiKey)
	}

	body, err := c.doGet(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: spot price: %w", err)
	}

	var resp simplePriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: decode spot price: %w", err)
	}
	price, err := pickPrice(resp[c.coinID], vs)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: spot price: %w", err)
	}
	return price, nil
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]*decimal.Decimal `json:"current_price"`
	} `json:"market_data"`
}

// HistoricalPrice returns the BTC price in currency for the UTC day of date.
// A day the provider has no market data for yields domain.ErrNotFound.
func (c *Client) HistoricalPrice(ctx context.Context, date time.Time, currency string) (decimal.Decimal, error) {
	vs := strings.ToLower(currency)
	day := date.UTC().Format(historyDateLayout)
	params := url.Values{}
	params.Set("date", day)
	params.Set("localization", "false")

	path := fmt.Sprintf("/coins/%s/history?%s", url.PathEscape(c.coinID), params.Encode())
	body, err := c.doGet(ctx, path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: history %s: %w", day, err)
	}

	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: decode history %s: %w", day, err)
	}
	if resp.MarketData == nil {
		return decimal.Zero, fmt.Errorf("coingecko: history %s: no market data: %w", day, domain.ErrNotFound)
	}
	price, err := pickPrice(resp.MarketData.CurrentPrice, vs)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: history %s: %w", day, err)
	}
	return price, nil
}

var errBadPrice = errors.New("missing or non-positive price")

func pickPrice(prices map[string]*decimal.Decimal, vs string) (decimal.Decimal, error) {
	p, ok := prices[vs]
	if !ok || p == nil || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: %w", vs, errBadPrice)
	}
	return *p, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}
	return body, nil
}
