package domain

import (
	"github.com/shopspring/decimal"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 100_000_000

// DustThreshold is one satoshi. Lot balances strictly below it are treated as
// zero.
var DustThreshold = decimal.New(1, -8)

// Sats is an integer amount of satoshis.
type Sats int64

// SatsFromBTC converts a BTC quantity to satoshis, truncating anything below
// one satoshi.
func SatsFromBTC(btc decimal.Decimal) Sats {
	return Sats(btc.Shift(8).Truncate(0).IntPart())
}

// BTC returns the amount as a decimal BTC quantity with 8 decimal places.
func (s Sats) BTC() decimal.Decimal {
	return decimal.New(int64(s), -8)
}

// Cents is an integer amount of US cents.
type Cents int64

// CentsFromUSD converts a USD amount to cents, rounding half away from zero.
func CentsFromUSD(usd decimal.Decimal) Cents {
	return Cents(usd.Shift(2).Round(0).IntPart())
}

// USD returns the amount as a decimal with 2 decimal places.
func (c Cents) USD() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// ProrateCents returns total * part / whole rounded half away from zero to the
// cent. whole must be positive.
func ProrateCents(total Cents, part, whole Sats) Cents {
	if whole <= 0 {
		return 0
	}
	if part == whole {
		return total
	}
	num := decimal.NewFromInt(int64(total)).Mul(decimal.NewFromInt(int64(part)))
	return Cents(num.DivRound(decimal.NewFromInt(int64(whole)), 0).IntPart())
}

// ConsumeCost returns the share of a lot's total cost attributable to taking
// used satoshis when remaining are left of acquired. Shares are rounded on the
// cumulative consumed amount, so the costs of fully draining a lot always sum
// to exactly its total.
func ConsumeCost(total Cents, acquired, remaining, used Sats) Cents {
	before := acquired - remaining
	return ProrateCents(total, before+used, acquired) - ProrateCents(total, before, acquired)
}
