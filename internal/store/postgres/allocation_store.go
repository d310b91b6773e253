package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// AllocationStore implements domain.AllocationStore using PostgreSQL.
type AllocationStore struct {
	pool *pgxpool.Pool
}

// NewAllocationStore creates a new AllocationStore backed by the given pool.
func NewAllocationStore(pool *pgxpool.Pool) *AllocationStore {
	return &AllocationStore{pool: pool}
}

const allocationSelectCols = `a.id, a.tenant_id, a.disposal_id, a.lot_id,
	a.quantity_consumed, a.cost_basis_usd, a.created_at`

// allocationOrder lists a disposal's records in the FIFO order they were
// matched.
const allocationOrder = ` ORDER BY l.acquired_at ASC, l.id ASC`

func scanAllocationRows(rows pgx.Rows) ([]domain.AllocationRecord, error) {
	defer rows.Close()
	var records []domain.AllocationRecord
	for rows.Next() {
		var r domain.AllocationRecord
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.DisposalID, &r.LotID,
			&r.QuantityConsumed, &r.CostBasisUSD, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listByDisposal(ctx context.Context, q queryer, tenantID string, disposalID uuid.UUID) ([]domain.AllocationRecord, error) {
	query := `SELECT ` + allocationSelectCols + `
		FROM allocation_records a JOIN acquisition_lots l ON l.id = a.lot_id
		WHERE a.tenant_id = $1 AND a.disposal_id = $2` + allocationOrder

	rows, err := q.Query(ctx, query, tenantID, disposalID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list allocations %s: %w", disposalID, err)
	}
	records, err := scanAllocationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan allocations %s: %w", disposalID, err)
	}
	return records, nil
}

// ListByDisposal returns the committed allocation trail for one disposal.
func (s *AllocationStore) ListByDisposal(ctx context.Context, tenantID string, disposalID uuid.UUID) ([]domain.AllocationRecord, error) {
	return listByDisposal(ctx, s.pool, tenantID, disposalID)
}

// ListByTenant returns the tenant's allocation records ordered by commit time
// with optional created_at filtering and pagination.
func (s *AllocationStore) ListByTenant(ctx context.Context, tenantID string, opts domain.ListOpts) ([]domain.AllocationRecord, error) {
	query := `SELECT ` + allocationSelectCols + `
		FROM allocation_records a JOIN acquisition_lots l ON l.id = a.lot_id
		WHERE a.tenant_id = $1`
	args := []any{tenantID}
	query, args = appendTimeWindow(query, args, "a.created_at", opts)
	query += " ORDER BY a.created_at ASC, a.disposal_id ASC, l.acquired_at ASC, l.id ASC"
	query, args = appendPaging(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tenant allocations %s: %w", tenantID, err)
	}
	records, err := scanAllocationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tenant allocations %s: %w", tenantID, err)
	}
	return records, nil
}

// Compile-time interface check.
var _ domain.AllocationStore = (*AllocationStore)(nil)
