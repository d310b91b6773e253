package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore backed by the given pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Create inserts a normalized transaction.
func (s *TransactionStore) Create(ctx context.Context, t domain.DisposalTransaction) error {
	const query = `
		INSERT INTO disposal_transactions (id, tenant_id, direction, quantity, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.TenantID, string(t.Direction), t.Quantity, t.OccurredAt, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create transaction %s: %w", t.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create transaction %s: %w", t.ID, err)
	}
	return nil
}

// GetByID returns the tenant's transaction or domain.ErrNotFound.
func (s *TransactionStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (domain.DisposalTransaction, error) {
	const query = `
		SELECT id, tenant_id, direction, quantity, occurred_at, created_at
		FROM disposal_transactions WHERE id = $1 AND tenant_id = $2`

	var t domain.DisposalTransaction
	var direction string
	err := s.pool.QueryRow(ctx, query, id, tenantID).Scan(
		&t.ID, &t.TenantID, &direction, &t.Quantity, &t.OccurredAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DisposalTransaction{}, domain.ErrNotFound
		}
		return domain.DisposalTransaction{}, fmt.Errorf("postgres: get transaction %s: %w", id, err)
	}
	t.Direction = domain.Direction(direction)
	return t, nil
}

// Compile-time interface check.
var _ domain.TransactionStore = (*TransactionStore)(nil)
