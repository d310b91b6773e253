package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
	"github.com/alanyoungcy/btcbasis/internal/notify"
)

// Alerter forwards operator alerts. *notify.Notifier implements it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EngineConfig tunes the commit path of the CostBasisEngine.
type EngineConfig struct {
	// CommitRetries bounds how many times ProcessDisposal recomputes after a
	// lot changed underneath it.
	CommitRetries int
	// LockTTL is the lease of the distributed per-tenant lock.
	LockTTL time.Duration
}

// CostBasisEngine matches disposals against acquisition lots in FIFO order
// and records the resulting allocation trail.
type CostBasisEngine struct {
	lots        domain.LotStore
	txs         domain.TransactionStore
	allocations domain.AllocationStore
	ledger      domain.LedgerStore
	bus         domain.SignalBus
	audit       domain.AuditStore
	locks       domain.LockManager
	alerts      Alerter
	tenantLocks *keyedMutex
	cfg         EngineConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewCostBasisEngine creates a CostBasisEngine with all required dependencies.
func NewCostBasisEngine(
	lots domain.LotStore,
	txs domain.TransactionStore,
	allocations domain.AllocationStore,
	ledger domain.LedgerStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg EngineConfig,
	logger *slog.Logger,
) *CostBasisEngine {
	if cfg.CommitRetries < 1 {
		cfg.CommitRetries = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &CostBasisEngine{
		lots:        lots,
		txs:         txs,
		allocations: allocations,
		ledger:      ledger,
		bus:         bus,
		audit:       audit,
		tenantLocks: newKeyedMutex(),
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "cost_basis")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithLockManager adds a distributed per-tenant lock around commits, for
// deployments running more than one replica.
func (e *CostBasisEngine) WithLockManager(lm domain.LockManager) *CostBasisEngine {
	e.locks = lm
	return e
}

// WithAlerter sends insufficient-inventory alerts through a.
func (e *CostBasisEngine) WithAlerter(a Alerter) *CostBasisEngine {
	e.alerts = a
	return e
}

// ComputeCostBasis previews the FIFO allocation of a disposal without
// persisting anything. It returns nil with no error when the transaction does
// not exist, is not a sent transaction, or has a non-positive quantity.
func (e *CostBasisEngine) ComputeCostBasis(ctx context.Context, tenantID string, disposalID uuid.UUID) (*domain.CostBasisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("cost_basis: tenant is required: %w", domain.ErrInvalidInput)
	}

	tx, ok, err := e.disposal(ctx, tenantID, disposalID)
	if err != nil || !ok {
		return nil, err
	}

	lots, err := e.lots.ListOpen(ctx, tenantID, domain.DustThreshold)
	if err != nil {
		return nil, fmt.Errorf("cost_basis: list open lots for %s: %w", tenantID, err)
	}

	result, skipped := AllocateFIFO(tx, lots, e.now())
	for _, lot := range skipped {
		e.logger.WarnContext(ctx, "cost_basis: lot excluded from matching",
			slog.String("tenant", tenantID),
			slog.String("lot_id", lot.ID.String()),
			slog.String("error", fmt.Errorf("zero quantity acquired: %w", domain.ErrInvalidInput).Error()),
		)
	}

	e.logger.DebugContext(ctx, "cost_basis: computed",
		slog.String("tenant", tenantID),
		slog.String("disposal_id", disposalID.String()),
		slog.Int("lots", len(result.Allocations)),
		slog.String("matched", result.AmountMatched.String()),
		slog.Bool("insufficient", result.InsufficientQuantity),
	)
	return result, nil
}

// disposal loads the transaction and reports whether it should be matched.
func (e *CostBasisEngine) disposal(ctx context.Context, tenantID string, id uuid.UUID) (domain.DisposalTransaction, bool, error) {
	tx, err := e.txs.GetByID(ctx, tenantID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DisposalTransaction{}, false, nil
	}
	if err != nil {
		return domain.DisposalTransaction{}, false, fmt.Errorf("cost_basis: get transaction %s: %w", id, err)
	}
	if !tx.IsDisposal() {
		e.logger.DebugContext(ctx, "cost_basis: not a disposal",
			slog.String("disposal_id", id.String()),
			slog.String("direction", string(tx.Direction)),
			slog.String("quantity", tx.Quantity.String()),
		)
		return tx, false, nil
	}
	return tx, true, nil
}

// CommitAllocation persists allocations for a disposal and decrements the
// referenced lots as one atomic unit. If the disposal already has records they
// are returned unchanged and nothing is written. Commits for one tenant are
// serialized.
func (e *CostBasisEngine) CommitAllocation(ctx context.Context, tenantID string, disposalID uuid.UUID, allocations []domain.AllocationRecord) ([]domain.AllocationRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("cost_basis: tenant is required: %w", domain.ErrInvalidInput)
	}
	tx, ok, err := e.disposal(ctx, tenantID, disposalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cost_basis: commit %s: disposal %w", disposalID, domain.ErrNotFound)
	}
	if err := validateAllocations(tx, allocations); err != nil {
		return nil, err
	}

	unlock, err := e.lockTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.now()
	var committed []domain.AllocationRecord
	existed := false

	err = e.ledger.WithinTx(ctx, tenantID, func(ltx domain.LedgerTx) error {
		existing, err := ltx.ListAllocations(ctx, disposalID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			committed, existed = existing, true
			return nil
		}
		if len(allocations) == 0 {
			return fmt.Errorf("no computed allocations: %w", domain.ErrNotFound)
		}

		records := make([]domain.AllocationRecord, len(allocations))
		for i, a := range allocations {
			if a.ID == uuid.Nil {
				a.ID = uuid.New()
			}
			a.TenantID = tenantID
			a.CreatedAt = now
			records[i] = a
		}
		if err := ltx.SaveAllocationRecords(ctx, records); err != nil {
			return err
		}
		for _, r := range records {
			if err := ltx.DecrementLot(ctx, r.LotID, r.QuantityConsumed); err != nil {
				return err
			}
		}
		committed = records
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cost_basis: commit %s: %w", disposalID, err)
	}

	if existed {
		e.logger.InfoContext(ctx, "cost_basis: allocations already committed",
			slog.String("tenant", tenantID),
			slog.String("disposal_id", disposalID.String()),
		)
		return committed, nil
	}

	e.afterCommit(ctx, tenantID, domain.ResultFromAllocations(disposalID, tx.Quantity, committed), now)
	return committed, nil
}

// validateAllocations rejects records that belong elsewhere or would consume
// more than the disposal.
func validateAllocations(tx domain.DisposalTransaction, allocations []domain.AllocationRecord) error {
	total := decimal.Zero
	seen := make(map[uuid.UUID]bool, len(allocations))
	for _, a := range allocations {
		if a.DisposalID != tx.ID {
			return fmt.Errorf("cost_basis: allocation for disposal %s passed to %s: %w", a.DisposalID, tx.ID, domain.ErrInvalidInput)
		}
		if !a.QuantityConsumed.IsPositive() {
			return fmt.Errorf("cost_basis: allocation on lot %s has non-positive quantity: %w", a.LotID, domain.ErrInvalidInput)
		}
		if seen[a.LotID] {
			return fmt.Errorf("cost_basis: lot %s allocated twice: %w", a.LotID, domain.ErrInvalidInput)
		}
		seen[a.LotID] = true
		total = total.Add(a.QuantityConsumed)
	}
	if total.GreaterThan(tx.Quantity) {
		return fmt.Errorf("cost_basis: allocations total %s exceeds disposal %s: %w", total, tx.Quantity, domain.ErrInvalidInput)
	}
	return nil
}

func (e *CostBasisEngine) lockTenant(ctx context.Context, tenantID string) (func(), error) {
	unlockLocal, err := e.tenantLocks.Lock(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cost_basis: lock tenant %s: %w", tenantID, err)
	}
	if e.locks == nil {
		return unlockLocal, nil
	}

	unlockRemote, err := e.locks.Acquire(ctx, "commit:"+tenantID, e.cfg.LockTTL)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("cost_basis: lock tenant %s: %w", tenantID, err)
	}
	return func() {
		unlockRemote()
		unlockLocal()
	}, nil
}

// afterCommit records the side effects of a fresh commit. Failures are logged
// and never undo the commit.
func (e *CostBasisEngine) afterCommit(ctx context.Context, tenantID string, res *domain.CostBasisResult, at time.Time) {
	evt := domain.AllocationEvent{
		TenantID:             tenantID,
		DisposalID:           res.DisposalID,
		Lots:                 len(res.Allocations),
		AmountMatched:        res.AmountMatched,
		TotalCostBasisUSD:    res.TotalCostBasisUSD,
		InsufficientQuantity: res.InsufficientQuantity,
		CommittedAt:          at,
	}
	payload, _ := json.Marshal(evt)
	if err := e.bus.Publish(ctx, domain.ChannelAllocations, payload); err != nil {
		e.logger.WarnContext(ctx, "cost_basis: publish event failed",
			slog.String("disposal_id", res.DisposalID.String()),
			slog.String("error", err.Error()),
		)
	}
	if err := e.bus.StreamAppend(ctx, domain.StreamAllocations, payload); err != nil {
		e.logger.WarnContext(ctx, "cost_basis: stream append failed",
			slog.String("disposal_id", res.DisposalID.String()),
			slog.String("error", err.Error()),
		)
	}

	lotIDs := make([]string, len(res.Allocations))
	for i, a := range res.Allocations {
		lotIDs[i] = a.LotID.String()
	}
	if err := e.audit.Log(ctx, "allocation_committed", map[string]any{
		"tenant":               tenantID,
		"disposal_id":          res.DisposalID.String(),
		"lots":                 lotIDs,
		"amount_matched":       res.AmountMatched.String(),
		"total_cost_basis_usd": res.TotalCostBasisUSD.StringFixed(2),
	}); err != nil {
		e.logger.WarnContext(ctx, "cost_basis: audit log failed",
			slog.String("disposal_id", res.DisposalID.String()),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "cost_basis: allocations committed",
		slog.String("tenant", tenantID),
		slog.String("disposal_id", res.DisposalID.String()),
		slog.Int("lots", len(res.Allocations)),
		slog.String("amount_matched", res.AmountMatched.String()),
		slog.String("cost_basis_usd", res.TotalCostBasisUSD.StringFixed(2)),
	)
}

// ProcessDisposal computes and commits a disposal's allocation. A disposal
// that already has a trail returns it unchanged. When a lot changed between
// preview and commit the allocation is recomputed, up to CommitRetries times.
// It returns nil with no error for transactions ComputeCostBasis ignores.
func (e *CostBasisEngine) ProcessDisposal(ctx context.Context, tenantID string, disposalID uuid.UUID) (*domain.CostBasisResult, error) {
	for attempt := 1; ; attempt++ {
		existing, err := e.Allocations(ctx, tenantID, disposalID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			tx, ok, err := e.disposal(ctx, tenantID, disposalID)
			if err != nil || !ok {
				return nil, err
			}
			return domain.ResultFromAllocations(disposalID, tx.Quantity, existing), nil
		}

		res, err := e.ComputeCostBasis(ctx, tenantID, disposalID)
		if err != nil || res == nil {
			return res, err
		}
		if len(res.Allocations) == 0 {
			e.alertInsufficient(ctx, tenantID, res)
			return res, nil
		}

		committed, err := e.CommitAllocation(ctx, tenantID, disposalID, res.Allocations)
		if errors.Is(err, domain.ErrConflict) && attempt < e.cfg.CommitRetries {
			e.logger.WarnContext(ctx, "cost_basis: lots changed during commit, recomputing",
				slog.String("disposal_id", disposalID.String()),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		res = domain.ResultFromAllocations(disposalID, res.AmountRequested, committed)
		if res.InsufficientQuantity {
			e.alertInsufficient(ctx, tenantID, res)
		}
		return res, nil
	}
}

func (e *CostBasisEngine) alertInsufficient(ctx context.Context, tenantID string, res *domain.CostBasisResult) {
	e.logger.WarnContext(ctx, "cost_basis: insufficient inventory",
		slog.String("tenant", tenantID),
		slog.String("disposal_id", res.DisposalID.String()),
		slog.String("requested", res.AmountRequested.String()),
		slog.String("matched", res.AmountMatched.String()),
	)
	if e.alerts == nil {
		return
	}
	title, msg := notify.InsufficientInventory(tenantID, res)
	if err := e.alerts.Notify(ctx, notify.EventInsufficientInventory, title, msg); err != nil {
		e.logger.WarnContext(ctx, "cost_basis: alert failed", slog.String("error", err.Error()))
	}
}

// Allocations returns the committed allocation trail of a disposal.
func (e *CostBasisEngine) Allocations(ctx context.Context, tenantID string, disposalID uuid.UUID) ([]domain.AllocationRecord, error) {
	records, err := e.allocations.ListByDisposal(ctx, tenantID, disposalID)
	if err != nil {
		return nil, fmt.Errorf("cost_basis: list allocations %s: %w", disposalID, err)
	}
	return records, nil
}
