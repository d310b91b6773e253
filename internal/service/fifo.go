package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// AllocateFIFO matches the disposal's quantity against lots, which must
// already be in FIFO order. Lots with a zero acquired quantity cannot be
// priced and are returned in skipped; dust lots are passed over silently.
// The result is a preview: nothing is persisted.
func AllocateFIFO(disposal domain.DisposalTransaction, lots []domain.AcquisitionLot, now time.Time) (result *domain.CostBasisResult, skipped []domain.AcquisitionLot) {
	needed := domain.SatsFromBTC(disposal.Quantity)
	var matched domain.Sats
	var totalCost domain.Cents
	var records []domain.AllocationRecord

	for _, lot := range lots {
		if needed <= 0 {
			break
		}
		acquired := domain.SatsFromBTC(lot.QuantityAcquired)
		if acquired <= 0 {
			skipped = append(skipped, lot)
			continue
		}
		remaining := domain.SatsFromBTC(lot.RemainingQuantity)
		if remaining > acquired {
			remaining = acquired
		}
		if remaining <= 0 {
			continue
		}

		used := min(remaining, needed)
		cost := domain.ConsumeCost(domain.CentsFromUSD(lot.CostBasisUSD), acquired, remaining, used)

		records = append(records, domain.AllocationRecord{
			ID:               uuid.New(),
			TenantID:         disposal.TenantID,
			DisposalID:       disposal.ID,
			LotID:            lot.ID,
			QuantityConsumed: used.BTC(),
			CostBasisUSD:     cost.USD(),
			CreatedAt:        now,
		})
		needed -= used
		matched += used
		totalCost += cost
	}

	return &domain.CostBasisResult{
		DisposalID:           disposal.ID,
		TotalCostBasisUSD:    totalCost.USD(),
		Allocations:          records,
		AmountMatched:        matched.BTC(),
		AmountRequested:      disposal.Quantity,
		InsufficientQuantity: needed > 0,
	}, skipped
}
