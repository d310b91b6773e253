package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bus channels and streams.
const (
	ChannelAllocations = "allocations"
	ChannelRates       = "rates"
	StreamAllocations  = "stream:allocations"
)

// AllocationEvent is published after a disposal's allocations are committed.
type AllocationEvent struct {
	TenantID             string          `json:"tenant_id"`
	DisposalID           uuid.UUID       `json:"disposal_id"`
	Lots                 int             `json:"lots"`
	AmountMatched        decimal.Decimal `json:"amount_matched"`
	TotalCostBasisUSD    decimal.Decimal `json:"total_cost_basis_usd"`
	InsufficientQuantity bool            `json:"insufficient_quantity"`
	CommittedAt          time.Time       `json:"committed_at"`
}

// RateEvent is published when a new observation is cached.
type RateEvent struct {
	Date     string          `json:"date"`
	Provider string          `json:"provider"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}
