package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// LivePriceSource returns the current BTC price.
type LivePriceSource interface {
	SpotPrice(ctx context.Context, currency string) (decimal.Decimal, error)
}

// HistoricalPriceSource returns the BTC price of a past UTC day.
type HistoricalPriceSource interface {
	HistoricalPrice(ctx context.Context, date time.Time, currency string) (decimal.Decimal, error)
}

// RateFetcher calls the market-data provider for one day's BTC price. Every
// call passes the shared gate first and is bounded by the request timeout.
type RateFetcher struct {
	live       LivePriceSource
	historical HistoricalPriceSource
	gate       domain.CallGate
	timeout    time.Duration
	currency   string
	now        func() time.Time
	logger     *slog.Logger
}

// NewRateFetcher creates a RateFetcher. gate must be shared by every fetcher
// that talks to the same provider.
func NewRateFetcher(live LivePriceSource, historical HistoricalPriceSource, gate domain.CallGate, timeout time.Duration, currency string, logger *slog.Logger) *RateFetcher {
	return &RateFetcher{
		live:       live,
		historical: historical,
		gate:       gate,
		timeout:    timeout,
		currency:   currency,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "rate_fetcher")),
	}
}

// Fetch returns the BTC price for day. Today's price comes from the live
// endpoint, earlier days from the historical one. Provider failures and
// timeouts are reported as domain.ErrUpstreamFetch.
func (f *RateFetcher) Fetch(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	day = domain.NormalizeDate(day)
	today := domain.NormalizeDate(f.now())
	if day.After(today) {
		return decimal.Zero, fmt.Errorf("rate_fetcher: %s is in the future: %w", domain.DayKey(day), domain.ErrInvalidInput)
	}

	if err := f.gate.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate_fetcher: wait for call slot: %w", err)
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	branch := "historical"
	var price decimal.Decimal
	var err error
	start := time.Now()
	if day.Equal(today) {
		branch = "live"
		price, err = f.live.SpotPrice(callCtx, f.currency)
	} else {
		price, err = f.historical.HistoricalPrice(callCtx, day, f.currency)
	}
	if err != nil {
		f.logger.WarnContext(ctx, "rate_fetcher: fetch failed",
			slog.String("date", domain.DayKey(day)),
			slog.String("branch", branch),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return decimal.Zero, fmt.Errorf("rate_fetcher: %s %s: %w: %w", branch, domain.DayKey(day), domain.ErrUpstreamFetch, err)
	}

	f.logger.DebugContext(ctx, "rate_fetcher: fetched",
		slog.String("date", domain.DayKey(day)),
		slog.String("branch", branch),
		slog.String("rate", price.String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return price, nil
}
