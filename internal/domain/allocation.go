package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationRecord attributes part of a disposal to one acquisition lot.
type AllocationRecord struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         string          `json:"tenant_id"`
	DisposalID       uuid.UUID       `json:"disposal_id"`
	LotID            uuid.UUID       `json:"lot_id"`
	QuantityConsumed decimal.Decimal `json:"quantity_consumed"`
	CostBasisUSD     decimal.Decimal `json:"cost_basis_usd"`
	CreatedAt        time.Time       `json:"created_at"`
}

// CostBasisResult is the outcome of matching one disposal against the lot
// queue. InsufficientQuantity marks a partial match; it is not an error.
type CostBasisResult struct {
	DisposalID           uuid.UUID          `json:"disposal_id"`
	TotalCostBasisUSD    decimal.Decimal    `json:"total_cost_basis_usd"`
	Allocations          []AllocationRecord `json:"allocations"`
	AmountMatched        decimal.Decimal    `json:"amount_matched"`
	AmountRequested      decimal.Decimal    `json:"amount_requested"`
	InsufficientQuantity bool               `json:"insufficient_quantity"`
}

// ResultFromAllocations rebuilds a result from an already committed
// allocation trail. Quantities are compared in whole satoshis, so a request
// finer than one satoshi is complete once its satoshis are matched.
func ResultFromAllocations(disposalID uuid.UUID, requested decimal.Decimal, records []AllocationRecord) *CostBasisResult {
	total := decimal.Zero
	var matched Sats
	for _, r := range records {
		total = total.Add(r.CostBasisUSD)
		matched += SatsFromBTC(r.QuantityConsumed)
	}
	return &CostBasisResult{
		DisposalID:           disposalID,
		TotalCostBasisUSD:    total,
		Allocations:          records,
		AmountMatched:        matched.BTC(),
		AmountRequested:      requested,
		InsufficientQuantity: matched < SatsFromBTC(requested),
	}
}

// RealizedGain prices a disposal at the day's rate against its FIFO cost basis.
type RealizedGain struct {
	DisposalID           uuid.UUID       `json:"disposal_id"`
	DisposedAt           time.Time       `json:"disposed_at"`
	Quantity             decimal.Decimal `json:"quantity"`
	RateUSD              decimal.Decimal `json:"rate_usd"`
	ProceedsUSD          decimal.Decimal `json:"proceeds_usd"`
	CostBasisUSD         decimal.Decimal `json:"cost_basis_usd"`
	GainUSD              decimal.Decimal `json:"gain_usd"`
	Committed            bool            `json:"committed"`
	InsufficientQuantity bool            `json:"insufficient_quantity"`
}
