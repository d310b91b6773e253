package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// RateProvider returns the BTC/USD rate for a UTC day.
type RateProvider interface {
	GetRate(ctx context.Context, date time.Time) (decimal.Decimal, error)
}

// GainService prices disposals against their FIFO cost basis.
type GainService struct {
	engine *CostBasisEngine
	rates  RateProvider
	logger *slog.Logger
}

// NewGainService creates a GainService.
func NewGainService(engine *CostBasisEngine, rates RateProvider, logger *slog.Logger) *GainService {
	return &GainService{
		engine: engine,
		rates:  rates,
		logger: logger.With(slog.String("component", "gain")),
	}
}

// RealizedGain values the disposal at the rate of its UTC day. The committed
// allocation trail is used when present, otherwise a FIFO preview. Proceeds
// cover only the matched quantity. It returns nil with no error for
// transactions that are not disposals.
func (s *GainService) RealizedGain(ctx context.Context, tenantID string, disposalID uuid.UUID) (*domain.RealizedGain, error) {
	records, err := s.engine.Allocations(ctx, tenantID, disposalID)
	if err != nil {
		return nil, err
	}

	tx, ok, err := s.engine.disposal(ctx, tenantID, disposalID)
	if err != nil || !ok {
		return nil, err
	}

	var res *domain.CostBasisResult
	committed := len(records) > 0
	if committed {
		res = domain.ResultFromAllocations(disposalID, tx.Quantity, records)
	} else {
		res, err = s.engine.ComputeCostBasis(ctx, tenantID, disposalID)
		if err != nil || res == nil {
			return nil, err
		}
	}

	rate, err := s.rates.GetRate(ctx, tx.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("gain: rate for disposal %s: %w", disposalID, err)
	}

	proceeds := res.AmountMatched.Mul(rate).Round(2)
	gain := &domain.RealizedGain{
		DisposalID:           disposalID,
		DisposedAt:           tx.OccurredAt,
		Quantity:             res.AmountMatched,
		RateUSD:              rate,
		ProceedsUSD:          proceeds,
		CostBasisUSD:         res.TotalCostBasisUSD,
		GainUSD:              proceeds.Sub(res.TotalCostBasisUSD),
		Committed:            committed,
		InsufficientQuantity: res.InsufficientQuantity,
	}

	s.logger.DebugContext(ctx, "gain: computed",
		slog.String("tenant", tenantID),
		slog.String("disposal_id", disposalID.String()),
		slog.String("gain_usd", gain.GainUSD.StringFixed(2)),
		slog.Bool("committed", committed),
	)
	return gain, nil
}
