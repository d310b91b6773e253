package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

func btc(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedLot(t *testing.T, l *Ledger, tenant string, at time.Time, qty string) domain.AcquisitionLot {
	t.Helper()
	lot := domain.NewAcquisitionLot(tenant, at, btc(qty), decimal.NewFromInt(1000))
	require.NoError(t, l.Create(context.Background(), lot))
	return lot
}

func TestLedger_ListOpenOrdersFIFO(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	late := seedLot(t, l, "acme", t0.Add(time.Hour), "1")
	a := domain.AcquisitionLot{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), TenantID: "acme", AcquiredAt: t0, QuantityAcquired: btc("1"), RemainingQuantity: btc("1")}
	b := domain.AcquisitionLot{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), TenantID: "acme", AcquiredAt: t0, QuantityAcquired: btc("1"), RemainingQuantity: btc("1")}
	require.NoError(t, l.Create(ctx, a))
	require.NoError(t, l.Create(ctx, b))
	dust := seedLot(t, l, "acme", t0.Add(-time.Hour), "1")
	dust.RemainingQuantity = btc("0.000000001")
	l.lots[dust.ID] = dust
	seedLot(t, l, "other", t0.Add(-2*time.Hour), "1")

	lots, err := l.ListOpen(ctx, "acme", domain.DustThreshold)
	require.NoError(t, err)
	require.Len(t, lots, 3)
	assert.Equal(t, b.ID, lots[0].ID)
	assert.Equal(t, a.ID, lots[1].ID)
	assert.Equal(t, late.ID, lots[2].ID)
}

func TestLedger_WithinTxIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	lot := seedLot(t, l, "acme", time.Now(), "0.5")
	disposal := uuid.New()

	boom := errors.New("boom")
	err := l.WithinTx(ctx, "acme", func(tx domain.LedgerTx) error {
		require.NoError(t, tx.SaveAllocationRecords(ctx, []domain.AllocationRecord{{
			ID: uuid.New(), DisposalID: disposal, LotID: lot.ID, QuantityConsumed: btc("0.2"),
		}}))
		require.NoError(t, tx.DecrementLot(ctx, lot.ID, btc("0.2")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := l.GetByID(ctx, "acme", lot.ID)
	require.NoError(t, err)
	assert.True(t, got.RemainingQuantity.Equal(btc("0.5")))
	recs, err := l.ListByDisposal(ctx, "acme", disposal)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLedger_DecrementGuard(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	lot := seedLot(t, l, "acme", time.Now(), "0.5")

	err := l.WithinTx(ctx, "acme", func(tx domain.LedgerTx) error {
		require.NoError(t, tx.DecrementLot(ctx, lot.ID, btc("0.3")))
		return tx.DecrementLot(ctx, lot.ID, btc("0.3"))
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = l.WithinTx(ctx, "other", func(tx domain.LedgerTx) error {
		return tx.DecrementLot(ctx, lot.ID, btc("0.1"))
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, l.WithinTx(ctx, "acme", func(tx domain.LedgerTx) error {
		return tx.DecrementLot(ctx, lot.ID, btc("0.5"))
	}))
	got, _ := l.GetByID(ctx, "acme", lot.ID)
	assert.True(t, got.RemainingQuantity.IsZero())
	assert.Equal(t, int64(1), got.Version)
}

func TestLedger_DuplicateAllocationRejected(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	lot := seedLot(t, l, "acme", time.Now(), "1")
	rec := domain.AllocationRecord{ID: uuid.New(), DisposalID: uuid.New(), LotID: lot.ID, QuantityConsumed: btc("0.1")}

	require.NoError(t, l.WithinTx(ctx, "acme", func(tx domain.LedgerTx) error {
		return tx.SaveAllocationRecords(ctx, []domain.AllocationRecord{rec})
	}))
	err := l.WithinTx(ctx, "acme", func(tx domain.LedgerTx) error {
		rec.ID = uuid.New()
		return tx.SaveAllocationRecords(ctx, []domain.AllocationRecord{rec})
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestRateStore_SaveIsInsertOnly(t *testing.T) {
	ctx := context.Background()
	s := NewRateStore()
	day := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	first := domain.RateObservation{Provider: "primary", Currency: "USD", Date: day, Rate: decimal.NewFromInt(60000)}
	second := first
	second.Rate = decimal.NewFromInt(1)

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Get(ctx, domain.RateKey{Provider: "primary", Currency: "USD", Date: domain.NormalizeDate(day)})
	require.NoError(t, err)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, domain.RateKey{Provider: "primary", Currency: "EUR", Date: day})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuditStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	require.NoError(t, s.Log(ctx, "a", nil))
	require.NoError(t, s.Log(ctx, "b", map[string]any{"k": 1}))

	entries, err := s.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Event)
}
