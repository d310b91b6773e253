package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AcquisitionLot is a discrete acquisition of BTC at a known total cost.
// RemainingQuantity only ever decreases, and only through allocation commits.
type AcquisitionLot struct {
	ID                uuid.UUID
	TenantID          string
	AcquiredAt        time.Time
	QuantityAcquired  decimal.Decimal
	CostBasisUSD      decimal.Decimal
	RemainingQuantity decimal.Decimal
	Version           int64
	CreatedAt         time.Time
}

// NewAcquisitionLot builds an unconsumed lot.
func NewAcquisitionLot(tenantID string, acquiredAt time.Time, qty, costUSD decimal.Decimal) AcquisitionLot {
	return AcquisitionLot{
		ID:                uuid.New(),
		TenantID:          tenantID,
		AcquiredAt:        acquiredAt.UTC(),
		QuantityAcquired:  qty,
		CostBasisUSD:      costUSD,
		RemainingQuantity: qty,
		CreatedAt:         time.Now().UTC(),
	}
}

// Validate checks the lot invariants.
func (l AcquisitionLot) Validate() error {
	if l.TenantID == "" {
		return fmt.Errorf("lot %s: tenant is required: %w", l.ID, ErrInvalidInput)
	}
	if !l.QuantityAcquired.IsPositive() {
		return fmt.Errorf("lot %s: quantity acquired must be positive: %w", l.ID, ErrInvalidInput)
	}
	if l.CostBasisUSD.IsNegative() {
		return fmt.Errorf("lot %s: cost basis must not be negative: %w", l.ID, ErrInvalidInput)
	}
	if l.RemainingQuantity.IsNegative() || l.RemainingQuantity.GreaterThan(l.QuantityAcquired) {
		return fmt.Errorf("lot %s: remaining quantity out of range: %w", l.ID, ErrInvalidInput)
	}
	return nil
}

// IsDust reports whether the remaining balance is below one satoshi.
func (l AcquisitionLot) IsDust() bool {
	return l.RemainingQuantity.LessThan(DustThreshold)
}
