package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// RateStore implements domain.RateStore using PostgreSQL. Observations are
// insert-only; a second save for the same key is ignored.
type RateStore struct {
	pool *pgxpool.Pool
}

// NewRateStore creates a new RateStore backed by the given pool.
func NewRateStore(pool *pgxpool.Pool) *RateStore {
	return &RateStore{pool: pool}
}

// Get returns the observation for key or domain.ErrNotFound.
func (s *RateStore) Get(ctx context.Context, key domain.RateKey) (domain.RateObservation, error) {
	const query = `
		SELECT provider, currency, rate_date, rate, fetched_at
		FROM rate_observations
		WHERE provider = $1 AND currency = $2 AND rate_date = $3`

	var o domain.RateObservation
	err := s.pool.QueryRow(ctx, query, key.Provider, key.Currency, domain.NormalizeDate(key.Date)).Scan(
		&o.Provider, &o.Currency, &o.Date, &o.Rate, &o.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RateObservation{}, domain.ErrNotFound
		}
		return domain.RateObservation{}, fmt.Errorf("postgres: get rate %s: %w", key, err)
	}
	o.Date = domain.NormalizeDate(o.Date)
	return o, nil
}

// Save inserts the observation unless one already exists for its key.
func (s *RateStore) Save(ctx context.Context, o domain.RateObservation) error {
	const query = `
		INSERT INTO rate_observations (provider, currency, rate_date, rate, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, currency, rate_date) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		o.Provider, o.Currency, domain.NormalizeDate(o.Date), o.Rate, o.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save rate %s: %w", o.Key(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RateStore = (*RateStore)(nil)
