package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/btcbasis/internal/domain"
	"github.com/alanyoungcy/btcbasis/internal/notify"
)

// RateSource fetches one day's BTC price from upstream. *RateFetcher
// implements it.
type RateSource interface {
	Fetch(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

// ExchangeRateService supplies the daily BTC/USD rate, fetching each day from
// upstream at most once and serving every later request from storage.
type ExchangeRateService struct {
	store    domain.RateStore
	cache    domain.RateCache
	source   RateSource
	bus      domain.SignalBus
	audit    domain.AuditStore
	alerts   Alerter
	provider string
	currency string
	group    singleflight.Group
	now      func() time.Time
	logger   *slog.Logger
}

// NewExchangeRateService creates an ExchangeRateService keyed by provider and
// currency.
func NewExchangeRateService(store domain.RateStore, source RateSource, bus domain.SignalBus, audit domain.AuditStore, provider, currency string, logger *slog.Logger) *ExchangeRateService {
	return &ExchangeRateService{
		store:    store,
		source:   source,
		bus:      bus,
		audit:    audit,
		provider: provider,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "rates")),
	}
}

// WithCache puts a read-through cache in front of the store.
func (s *ExchangeRateService) WithCache(c domain.RateCache) *ExchangeRateService {
	s.cache = c
	return s
}

// WithAlerter sends batch fetch failures through a.
func (s *ExchangeRateService) WithAlerter(a Alerter) *ExchangeRateService {
	s.alerts = a
	return s
}

// GetRate returns the BTC price for the UTC day containing date.
func (s *ExchangeRateService) GetRate(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	obs, err := s.GetObservation(ctx, date)
	if err != nil {
		return decimal.Zero, err
	}
	return obs.Rate, nil
}

// GetObservation is GetRate returning the full cached observation.
func (s *ExchangeRateService) GetObservation(ctx context.Context, date time.Time) (domain.RateObservation, error) {
	key := domain.RateKey{Provider: s.provider, Currency: s.currency, Date: domain.NormalizeDate(date)}

	if obs, ok := s.lookup(ctx, key); ok {
		return obs, nil
	}

	// The shared fetch outlives any one caller; it is bounded by the
	// fetcher's request timeout. Each caller stops waiting on its own ctx.
	ch := s.group.DoChan(key.String(), func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		// A caller that lost the race may find the winner's result stored.
		if obs, ok := s.lookup(fctx, key); ok {
			return obs, nil
		}
		return s.fetchAndStore(fctx, key)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.RateObservation{}, fmt.Errorf("rates: get %s: %w", key, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.RateObservation{}, res.Err
	}
	if res.Shared {
		s.logger.DebugContext(ctx, "rates: shared in-flight fetch", slog.String("key", key.String()))
	}
	return res.Val.(domain.RateObservation), nil
}

// lookup checks the cache and then the store. Read errors other than a miss
// are logged and treated as a miss.
func (s *ExchangeRateService) lookup(ctx context.Context, key domain.RateKey) (domain.RateObservation, bool) {
	if s.cache != nil {
		obs, err := s.cache.Get(ctx, key)
		if err == nil {
			return obs, true
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "rates: cache read failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	obs, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "rates: store read failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
		return domain.RateObservation{}, false
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, obs); err != nil {
			s.logger.WarnContext(ctx, "rates: cache fill failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return obs, true
}

func (s *ExchangeRateService) fetchAndStore(ctx context.Context, key domain.RateKey) (domain.RateObservation, error) {
	rate, err := s.source.Fetch(ctx, key.Date)
	if err != nil {
		return domain.RateObservation{}, fmt.Errorf("rates: get %s: %w", key, err)
	}

	obs := domain.RateObservation{
		Provider:  key.Provider,
		Currency:  key.Currency,
		Date:      key.Date,
		Rate:      rate,
		FetchedAt: s.now(),
	}

	if err := s.store.Save(ctx, obs); err != nil {
		// The rate is still valid; the next miss will fetch it again.
		s.logger.WarnContext(ctx, "rates: save observation failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		return obs, nil
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, obs); err != nil {
			s.logger.WarnContext(ctx, "rates: cache write failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.audit.Log(ctx, "rate_cached", map[string]any{
		"key":  key.String(),
		"rate": rate.String(),
	}); err != nil {
		s.logger.WarnContext(ctx, "rates: audit log failed", slog.String("error", err.Error()))
	}
	payload, _ := json.Marshal(domain.RateEvent{
		Date:     domain.DayKey(key.Date),
		Provider: key.Provider,
		Currency: key.Currency,
		Rate:     rate,
	})
	if err := s.bus.Publish(ctx, domain.ChannelRates, payload); err != nil {
		s.logger.WarnContext(ctx, "rates: publish event failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "rates: observation cached",
		slog.String("key", key.String()),
		slog.String("rate", rate.String()),
	)
	return obs, nil
}

// BatchGetRates returns rates keyed by YYYY-MM-DD for the distinct days in
// dates. Days are resolved one at a time in first-seen order. A day that
// fails is logged, alerted and left out of the result. If ctx ends the rates
// collected so far are returned with the context error.
func (s *ExchangeRateService) BatchGetRates(ctx context.Context, dates []time.Time) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(dates))
	seen := make(map[string]bool, len(dates))
	var failed int

	for _, d := range dates {
		day := domain.NormalizeDate(d)
		k := domain.DayKey(day)
		if seen[k] {
			continue
		}
		seen[k] = true

		if err := ctx.Err(); err != nil {
			return out, err
		}

		rate, err := s.GetRate(ctx, day)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			failed++
			s.logger.ErrorContext(ctx, "rates: batch date failed",
				slog.String("date", k),
				slog.String("error", err.Error()),
			)
			s.alertFetchFailed(ctx, day, err)
			continue
		}
		out[k] = rate
	}

	s.logger.InfoContext(ctx, "rates: batch complete",
		slog.Int("requested", len(seen)),
		slog.Int("resolved", len(out)),
		slog.Int("failed", failed),
	)
	return out, nil
}

func (s *ExchangeRateService) alertFetchFailed(ctx context.Context, day time.Time, cause error) {
	if s.alerts == nil {
		return
	}
	title, msg := notify.RateFetchFailed(day, cause)
	if err := s.alerts.Notify(ctx, notify.EventRateFetchFailed, title, msg); err != nil {
		s.logger.WarnContext(ctx, "rates: alert failed", slog.String("error", err.Error()))
	}
}
