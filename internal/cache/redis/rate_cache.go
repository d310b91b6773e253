package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// RateCache implements domain.RateCache using Redis hashes. Each observation
// is stored at "btcbasis:rate:{provider}:{currency}:{YYYY-MM-DD}" with fields
// "rate" and "fetched_at" (Unix nanoseconds). Historical rates never change,
// so entries carry no TTL.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(k domain.RateKey) string {
	return key("rate", k.Provider, k.Currency, domain.DayKey(k.Date))
}

// Set stores the observation unless the key already holds one.
func (rc *RateCache) Set(ctx context.Context, o domain.RateObservation) error {
	k := rateKey(o.Key())
	_, err := rc.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, k, "rate", o.Rate.String())
		pipe.HSetNX(ctx, k, "fetched_at", strconv.FormatInt(o.FetchedAt.UnixNano(), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set rate %s: %w", o.Key(), err)
	}
	return nil
}

// Get returns the cached observation or domain.ErrNotFound.
func (rc *RateCache) Get(ctx context.Context, k domain.RateKey) (domain.RateObservation, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(k)).Result()
	if err != nil {
		return domain.RateObservation{}, fmt.Errorf("redis: get rate %s: %w", k, err)
	}
	rateStr, ok := vals["rate"]
	if !ok {
		return domain.RateObservation{}, domain.ErrNotFound
	}
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return domain.RateObservation{}, fmt.Errorf("redis: parse rate %s: %w", k, err)
	}

	o := domain.RateObservation{
		Provider: k.Provider,
		Currency: k.Currency,
		Date:     domain.NormalizeDate(k.Date),
		Rate:     rate,
	}
	if tsStr, ok := vals["fetched_at"]; ok {
		if ns, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			o.FetchedAt = time.Unix(0, ns).UTC()
		}
	}
	return o, nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
