package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the flow of a ledger transaction relative to the tenant.
type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionSent     Direction = "sent"
)

// DisposalTransaction is a normalized ledger transaction. Only sent
// transactions are matched against lots.
type DisposalTransaction struct {
	ID         uuid.UUID
	TenantID   string
	Direction  Direction
	Quantity   decimal.Decimal
	OccurredAt time.Time
	CreatedAt  time.Time
}

// IsDisposal reports whether the transaction should be matched against lots.
// A sent quantity below one satoshi has nothing to match.
func (t DisposalTransaction) IsDisposal() bool {
	return t.Direction == DirectionSent && SatsFromBTC(t.Quantity) > 0
}

// Validate checks the transaction fields before it is stored.
func (t DisposalTransaction) Validate() error {
	if t.TenantID == "" {
		return fmt.Errorf("transaction %s: tenant is required: %w", t.ID, ErrInvalidInput)
	}
	if t.Direction != DirectionSent && t.Direction != DirectionReceived {
		return fmt.Errorf("transaction %s: unknown direction %q: %w", t.ID, t.Direction, ErrInvalidInput)
	}
	if t.Quantity.IsNegative() {
		return fmt.Errorf("transaction %s: quantity must not be negative: %w", t.ID, ErrInvalidInput)
	}
	if !SatsFromBTC(t.Quantity).BTC().Equal(t.Quantity) {
		return fmt.Errorf("transaction %s: quantity %s is finer than one satoshi: %w", t.ID, t.Quantity, ErrInvalidInput)
	}
	if t.OccurredAt.IsZero() {
		return fmt.Errorf("transaction %s: occurred_at is required: %w", t.ID, ErrInvalidInput)
	}
	return nil
}
