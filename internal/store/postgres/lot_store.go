package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// LotStore implements domain.LotStore using PostgreSQL.
type LotStore struct {
	pool *pgxpool.Pool
}

// NewLotStore creates a new LotStore backed by the given connection pool.
func NewLotStore(pool *pgxpool.Pool) *LotStore {
	return &LotStore{pool: pool}
}

const lotSelectCols = `id, tenant_id, acquired_at, quantity_acquired, cost_basis_usd,
	remaining_quantity, version, created_at`

func scanLotRow(row pgx.Row) (domain.AcquisitionLot, error) {
	var l domain.AcquisitionLot
	err := row.Scan(
		&l.ID, &l.TenantID, &l.AcquiredAt,
		&l.QuantityAcquired, &l.CostBasisUSD, &l.RemainingQuantity,
		&l.Version, &l.CreatedAt,
	)
	return l, err
}

func scanLotRows(rows pgx.Rows) ([]domain.AcquisitionLot, error) {
	defer rows.Close()
	var lots []domain.AcquisitionLot
	for rows.Next() {
		l, err := scanLotRow(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// Create inserts a new lot.
func (s *LotStore) Create(ctx context.Context, l domain.AcquisitionLot) error {
	const query = `
		INSERT INTO acquisition_lots (
			id, tenant_id, acquired_at, quantity_acquired, cost_basis_usd,
			remaining_quantity, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.TenantID, l.AcquiredAt, l.QuantityAcquired, l.CostBasisUSD,
		l.RemainingQuantity, l.Version, l.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create lot %s: %w", l.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create lot %s: %w", l.ID, err)
	}
	return nil
}

// GetByID returns a single lot of the tenant.
func (s *LotStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (domain.AcquisitionLot, error) {
	query := `SELECT ` + lotSelectCols + ` FROM acquisition_lots WHERE id = $1 AND tenant_id = $2`
	l, err := scanLotRow(s.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AcquisitionLot{}, domain.ErrNotFound
		}
		return domain.AcquisitionLot{}, fmt.Errorf("postgres: get lot %s: %w", id, err)
	}
	return l, nil
}

// ListOpen returns the tenant's lots holding at least minRemaining, oldest
// first. Postgres orders uuid by byte value, which matches uuid.UUID
// comparison in Go.
func (s *LotStore) ListOpen(ctx context.Context, tenantID string, minRemaining decimal.Decimal) ([]domain.AcquisitionLot, error) {
	query := `SELECT ` + lotSelectCols + ` FROM acquisition_lots
		WHERE tenant_id = $1 AND remaining_quantity >= $2
		ORDER BY acquired_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, tenantID, minRemaining)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open lots %s: %w", tenantID, err)
	}
	lots, err := scanLotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open lots %s: %w", tenantID, err)
	}
	return lots, nil
}

// List returns all of the tenant's lots in FIFO order with pagination.
func (s *LotStore) List(ctx context.Context, tenantID string, opts domain.ListOpts) ([]domain.AcquisitionLot, error) {
	query := `SELECT ` + lotSelectCols + ` FROM acquisition_lots WHERE tenant_id = $1`
	args := []any{tenantID}
	query, args = appendTimeWindow(query, args, "acquired_at", opts)
	query += " ORDER BY acquired_at ASC, id ASC"
	query, args = appendPaging(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lots %s: %w", tenantID, err)
	}
	lots, err := scanLotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan lots %s: %w", tenantID, err)
	}
	return lots, nil
}

// Compile-time interface check.
var _ domain.LotStore = (*LotStore)(nil)
