package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the canonical day string used for rate keys and batch results.
const DayLayout = "2006-01-02"

// RateKey identifies one cached observation.
type RateKey struct {
	Provider string
	Currency string
	Date     time.Time
}

// String renders the key as provider:currency:YYYY-MM-DD.
func (k RateKey) String() string {
	return k.Provider + ":" + k.Currency + ":" + DayKey(k.Date)
}

// RateObservation is a cached BTC price for one UTC day. Observations are
// written once and never mutated.
type RateObservation struct {
	Provider  string          `json:"provider"`
	Currency  string          `json:"currency"`
	Date      time.Time       `json:"date"`
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Key returns the cache key of the observation.
func (o RateObservation) Key() RateKey {
	return RateKey{Provider: o.Provider, Currency: o.Currency, Date: o.Date}
}

// NormalizeDate strips the time of day, returning UTC midnight.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats t as its UTC day string.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD day string as UTC midnight.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, ErrInvalidInput)
	}
	return t, nil
}
