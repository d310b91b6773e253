package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// testClient connects to BTCBASIS_TEST_DATABASE_URL, applies the migrations
// or skips the test.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("BTCBASIS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("BTCBASIS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	_, err = c.RunMigrations(ctx)
	require.NoError(t, err)
	return c
}

type ledgerFixture struct {
	tenant string
	ledger *LedgerStore
	lots   *LotStore
	allocs *AllocationStore
	lot    domain.AcquisitionLot
	tx     domain.DisposalTransaction
}

// newLedgerFixture seeds a fresh tenant holding one 1 BTC lot and one sent
// transaction.
func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	c := testClient(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	f := &ledgerFixture{
		tenant: "test-" + uuid.NewString(),
		ledger: NewLedgerStore(c.Pool()),
		lots:   NewLotStore(c.Pool()),
		allocs: NewAllocationStore(c.Pool()),
	}
	f.lot = domain.NewAcquisitionLot(f.tenant, at, decimal.NewFromInt(1), decimal.NewFromInt(20000))
	require.NoError(t, f.lots.Create(ctx, f.lot))

	f.tx = domain.DisposalTransaction{
		ID:         uuid.New(),
		TenantID:   f.tenant,
		Direction:  domain.DirectionSent,
		Quantity:   decimal.RequireFromString("0.6"),
		OccurredAt: at.Add(24 * time.Hour),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, NewTransactionStore(c.Pool()).Create(ctx, f.tx))
	return f
}

func (f *ledgerFixture) record(qty, cost string) domain.AllocationRecord {
	return domain.AllocationRecord{
		ID:               uuid.New(),
		TenantID:         f.tenant,
		DisposalID:       f.tx.ID,
		LotID:            f.lot.ID,
		QuantityConsumed: decimal.RequireFromString(qty),
		CostBasisUSD:     decimal.RequireFromString(cost),
		CreatedAt:        time.Now().UTC(),
	}
}

func (f *ledgerFixture) remaining(t *testing.T) decimal.Decimal {
	t.Helper()
	lot, err := f.lots.GetByID(context.Background(), f.tenant, f.lot.ID)
	require.NoError(t, err)
	return lot.RemainingQuantity
}

func TestLedgerStore_DecrementBeyondRemainingRollsBack(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	err := f.ledger.WithinTx(ctx, f.tenant, func(tx domain.LedgerTx) error {
		if err := tx.SaveAllocationRecords(ctx, []domain.AllocationRecord{f.record("1.5", "30000")}); err != nil {
			return err
		}
		return tx.DecrementLot(ctx, f.lot.ID, decimal.RequireFromString("1.5"))
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	assert.True(t, decimal.NewFromInt(1).Equal(f.remaining(t)))
	got, err := f.allocs.ListByDisposal(ctx, f.tenant, f.tx.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLedgerStore_DecrementUnknownLot(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	err := f.ledger.WithinTx(ctx, f.tenant, func(tx domain.LedgerTx) error {
		return tx.DecrementLot(ctx, uuid.New(), decimal.RequireFromString("0.1"))
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Another tenant's lot is invisible.
	err = f.ledger.WithinTx(ctx, "other-"+f.tenant, func(tx domain.LedgerTx) error {
		return tx.DecrementLot(ctx, f.lot.ID, decimal.RequireFromString("0.1"))
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, decimal.NewFromInt(1).Equal(f.remaining(t)))
}

func TestLedgerStore_CommitIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	rec := f.record("0.6", "12000")

	commit := func(tx domain.LedgerTx) error {
		existing, err := tx.ListAllocations(ctx, f.tx.ID)
		if err != nil || len(existing) > 0 {
			return err
		}
		if err := tx.SaveAllocationRecords(ctx, []domain.AllocationRecord{rec}); err != nil {
			return err
		}
		return tx.DecrementLot(ctx, f.lot.ID, rec.QuantityConsumed)
	}
	require.NoError(t, f.ledger.WithinTx(ctx, f.tenant, commit))
	require.NoError(t, f.ledger.WithinTx(ctx, f.tenant, commit))

	assert.True(t, decimal.RequireFromString("0.4").Equal(f.remaining(t)))
	got, err := f.allocs.ListByDisposal(ctx, f.tenant, f.tx.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.True(t, rec.CostBasisUSD.Equal(got[0].CostBasisUSD))

	// The same (disposal, lot) pair cannot be written twice.
	err = f.ledger.WithinTx(ctx, f.tenant, func(tx domain.LedgerTx) error {
		return tx.SaveAllocationRecords(ctx, []domain.AllocationRecord{f.record("0.6", "12000")})
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestLedgerStore_ConcurrentCommitsSerialize(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.ledger.WithinTx(ctx, f.tenant, func(tx domain.LedgerTx) error {
				return tx.DecrementLot(ctx, f.lot.ID, decimal.RequireFromString("0.6"))
			})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
	assert.True(t, decimal.RequireFromString("0.4").Equal(f.remaining(t)))
}
