package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LotStore persists acquisition lots.
type LotStore interface {
	Create(ctx context.Context, lot AcquisitionLot) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (AcquisitionLot, error)
	// ListOpen returns the tenant's lots with RemainingQuantity >= minRemaining,
	// ordered by AcquiredAt then ID ascending.
	ListOpen(ctx context.Context, tenantID string, minRemaining decimal.Decimal) ([]AcquisitionLot, error)
	List(ctx context.Context, tenantID string, opts ListOpts) ([]AcquisitionLot, error)
}

// TransactionStore persists normalized ledger transactions.
type TransactionStore interface {
	Create(ctx context.Context, tx DisposalTransaction) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (DisposalTransaction, error)
}

// AllocationStore reads committed allocation trails.
type AllocationStore interface {
	ListByDisposal(ctx context.Context, tenantID string, disposalID uuid.UUID) ([]AllocationRecord, error)
	ListByTenant(ctx context.Context, tenantID string, opts ListOpts) ([]AllocationRecord, error)
}

// LedgerTx is the set of ledger writes that must apply atomically for one
// disposal. It is only valid inside LedgerStore.WithinTx.
type LedgerTx interface {
	ListAllocations(ctx context.Context, disposalID uuid.UUID) ([]AllocationRecord, error)
	SaveAllocationRecords(ctx context.Context, records []AllocationRecord) error
	// DecrementLot subtracts amount from the lot's remaining quantity, clamped
	// at zero. It returns ErrConflict when the lot no longer holds amount.
	DecrementLot(ctx context.Context, lotID uuid.UUID, amount decimal.Decimal) error
}

// LedgerStore runs fn in a single atomic unit scoped to one tenant. If fn
// returns an error nothing it wrote is kept.
type LedgerStore interface {
	WithinTx(ctx context.Context, tenantID string, fn func(tx LedgerTx) error) error
}

// RateStore persists exchange-rate observations. Save never overwrites an
// existing observation for the same key.
type RateStore interface {
	Get(ctx context.Context, key RateKey) (RateObservation, error)
	Save(ctx context.Context, obs RateObservation) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
