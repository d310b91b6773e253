package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Each unit of work runs in one
// transaction holding a per-tenant advisory lock, so commits for the same
// tenant serialize across processes.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// WithinTx runs fn inside a transaction. The transaction is rolled back when
// fn returns an error.
func (s *LedgerStore) WithinTx(ctx context.Context, tenantID string, fn func(tx domain.LedgerTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", tenantID); err != nil {
			return fmt.Errorf("postgres: lock tenant %s: %w", tenantID, err)
		}
		return fn(&ledgerTx{tx: tx, tenantID: tenantID})
	})
}

type ledgerTx struct {
	tx       pgx.Tx
	tenantID string
}

func (t *ledgerTx) ListAllocations(ctx context.Context, disposalID uuid.UUID) ([]domain.AllocationRecord, error) {
	return listByDisposal(ctx, t.tx, t.tenantID, disposalID)
}

func (t *ledgerTx) SaveAllocationRecords(ctx context.Context, records []domain.AllocationRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO allocation_records (
			id, tenant_id, disposal_id, lot_id, quantity_consumed, cost_basis_usd, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, r := range records {
		batch.Queue(query,
			r.ID, t.tenantID, r.DisposalID, r.LotID,
			r.QuantityConsumed, r.CostBasisUSD, r.CreatedAt,
		)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("postgres: insert allocation %d: %w", i, domain.ErrAlreadyExists)
			}
			return fmt.Errorf("postgres: insert allocation %d: %w", i, err)
		}
	}
	return nil
}

// DecrementLot applies a guarded decrement. Zero rows affected means the lot
// vanished or no longer holds amount.
func (t *ledgerTx) DecrementLot(ctx context.Context, lotID uuid.UUID, amount decimal.Decimal) error {
	const query = `
		UPDATE acquisition_lots
		SET remaining_quantity = GREATEST(remaining_quantity - $3, 0),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND remaining_quantity >= $3`

	tag, err := t.tx.Exec(ctx, query, lotID, t.tenantID, amount)
	if err != nil {
		return fmt.Errorf("postgres: decrement lot %s: %w", lotID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM acquisition_lots WHERE id = $1 AND tenant_id = $2)",
		lotID, t.tenantID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check lot %s: %w", lotID, err)
	}
	if !exists {
		return fmt.Errorf("postgres: decrement lot %s: %w", lotID, domain.ErrNotFound)
	}
	return fmt.Errorf("postgres: decrement lot %s by %s: %w", lotID, amount, domain.ErrConflict)
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
