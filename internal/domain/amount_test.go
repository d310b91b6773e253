package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSatsFromBTC(t *testing.T) {
	tests := []struct {
		in   string
		want Sats
	}{
		{"1", SatsPerBTC},
		{"0.00000001", 1},
		{"0.000000019", 1},
		{"0.3", 30_000_000},
		{"21000000", 21_000_000 * SatsPerBTC},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SatsFromBTC(decimal.RequireFromString(tt.in)))
		})
	}
	assert.True(t, Sats(20_000_000).BTC().Equal(decimal.RequireFromString("0.2")))
}

func TestCentsFromUSD(t *testing.T) {
	assert.Equal(t, Cents(1_000_000), CentsFromUSD(decimal.NewFromInt(10_000)))
	assert.Equal(t, Cents(101), CentsFromUSD(decimal.RequireFromString("1.005")))
	assert.Equal(t, Cents(-101), CentsFromUSD(decimal.RequireFromString("-1.005")))
	assert.Equal(t, "2333.33", Cents(233_333).USD().StringFixed(2))
}

func TestProrateCents(t *testing.T) {
	tests := []struct {
		name        string
		total       Cents
		part, whole Sats
		want        Cents
	}{
		{"whole lot", 700_000, 30_000_000, 30_000_000, 700_000},
		{"third of lot", 700_000, 10_000_000, 30_000_000, 233_333},
		{"half cent rounds up", 1, 1, 2, 1},
		{"one and a half rounds up", 3, 1, 2, 2},
		{"zero whole", 500, 1, 0, 0},
		{"large lot does not overflow", 50_000_000_000, 15 * SatsPerBTC, 20 * SatsPerBTC, 37_500_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProrateCents(tt.total, tt.part, tt.whole))
		})
	}
}

func TestAcquisitionLot_Validate(t *testing.T) {
	base := NewAcquisitionLot("acme", time.Now(), decimal.RequireFromString("0.5"), decimal.NewFromInt(10_000))
	require.NoError(t, base.Validate())
	assert.True(t, base.RemainingQuantity.Equal(base.QuantityAcquired))

	tests := []struct {
		name   string
		mutate func(*AcquisitionLot)
	}{
		{"missing tenant", func(l *AcquisitionLot) { l.TenantID = "" }},
		{"zero quantity", func(l *AcquisitionLot) { l.QuantityAcquired = decimal.Zero }},
		{"negative basis", func(l *AcquisitionLot) { l.CostBasisUSD = decimal.NewFromInt(-1) }},
		{"remaining above acquired", func(l *AcquisitionLot) { l.RemainingQuantity = decimal.NewFromInt(1) }},
		{"negative remaining", func(l *AcquisitionLot) { l.RemainingQuantity = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lot := base
			tt.mutate(&lot)
			assert.ErrorIs(t, lot.Validate(), ErrInvalidInput)
		})
	}
}

func TestAcquisitionLot_IsDust(t *testing.T) {
	lot := AcquisitionLot{RemainingQuantity: decimal.RequireFromString("0.000000009")}
	assert.True(t, lot.IsDust())
	lot.RemainingQuantity = DustThreshold
	assert.False(t, lot.IsDust())
}

func TestDisposalTransaction(t *testing.T) {
	tx := DisposalTransaction{
		TenantID:   "acme",
		Direction:  DirectionSent,
		Quantity:   decimal.RequireFromString("0.1"),
		OccurredAt: time.Now(),
	}
	require.NoError(t, tx.Validate())
	assert.True(t, tx.IsDisposal())

	tx.Direction = DirectionReceived
	assert.False(t, tx.IsDisposal())

	tx.Direction = DirectionSent
	tx.Quantity = decimal.Zero
	assert.False(t, tx.IsDisposal())

	tx.Quantity = decimal.RequireFromString("0.000000005")
	assert.False(t, tx.IsDisposal())

	tx.Quantity = decimal.RequireFromString("0.123456789")
	assert.True(t, tx.IsDisposal())
	assert.ErrorIs(t, tx.Validate(), ErrInvalidInput)

	tx.Quantity = decimal.RequireFromString("0.12345678")
	require.NoError(t, tx.Validate())

	tx.Direction = "burned"
	assert.ErrorIs(t, tx.Validate(), ErrInvalidInput)
}

func TestResultFromAllocations_ComparesSatoshis(t *testing.T) {
	records := []AllocationRecord{
		{QuantityConsumed: decimal.RequireFromString("0.1"), CostBasisUSD: decimal.RequireFromString("2000")},
		{QuantityConsumed: decimal.RequireFromString("0.02345678"), CostBasisUSD: decimal.RequireFromString("469.14")},
	}

	res := ResultFromAllocations(uuid.New(), decimal.RequireFromString("0.123456789"), records)
	assert.False(t, res.InsufficientQuantity)
	assert.True(t, decimal.RequireFromString("0.12345678").Equal(res.AmountMatched), res.AmountMatched.String())
	assert.True(t, decimal.RequireFromString("2469.14").Equal(res.TotalCostBasisUSD))

	res = ResultFromAllocations(uuid.New(), decimal.RequireFromString("0.12345679"), records)
	assert.True(t, res.InsufficientQuantity)
}

func TestConsumeCost_SumsToLotTotal(t *testing.T) {
	const total Cents = 1_000_000
	const acquired Sats = 3 * SatsPerBTC
	remaining := acquired
	var sum Cents
	for _, used := range []Sats{SatsPerBTC, SatsPerBTC, SatsPerBTC} {
		sum += ConsumeCost(total, acquired, remaining, used)
		remaining -= used
	}
	assert.Equal(t, total, sum)
	assert.Equal(t, Cents(333_333), ConsumeCost(total, acquired, acquired, SatsPerBTC))
	assert.Equal(t, Cents(233_333), ConsumeCost(700_000, 30_000_000, 30_000_000, 10_000_000))
}
