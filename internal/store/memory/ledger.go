// Package memory implements the ledger, rate and audit stores in process
// memory. It backs the "memory" store mode and the service tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// Ledger holds lots, transactions and allocation records. It implements
// domain.LotStore, domain.TransactionStore, domain.AllocationStore and
// domain.LedgerStore.
type Ledger struct {
	mu     sync.RWMutex
	lots   map[uuid.UUID]domain.AcquisitionLot
	txs    map[uuid.UUID]domain.DisposalTransaction
	allocs []domain.AllocationRecord

	// txMu serializes units of work.
	txMu sync.Mutex
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		lots: make(map[uuid.UUID]domain.AcquisitionLot),
		txs:  make(map[uuid.UUID]domain.DisposalTransaction),
	}
}

// Create inserts a lot.
func (l *Ledger) Create(_ context.Context, lot domain.AcquisitionLot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.lots[lot.ID]; ok {
		return fmt.Errorf("memory: create lot %s: %w", lot.ID, domain.ErrAlreadyExists)
	}
	l.lots[lot.ID] = lot
	return nil
}

// GetByID returns a lot of the tenant.
func (l *Ledger) GetByID(_ context.Context, tenantID string, id uuid.UUID) (domain.AcquisitionLot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lot, ok := l.lots[id]
	if !ok || lot.TenantID != tenantID {
		return domain.AcquisitionLot{}, domain.ErrNotFound
	}
	return lot, nil
}

// ListOpen returns the tenant's lots holding at least minRemaining in FIFO
// order.
func (l *Ledger) ListOpen(_ context.Context, tenantID string, minRemaining decimal.Decimal) ([]domain.AcquisitionLot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.AcquisitionLot
	for _, lot := range l.lots {
		if lot.TenantID == tenantID && lot.RemainingQuantity.GreaterThanOrEqual(minRemaining) {
			out = append(out, lot)
		}
	}
	sortFIFO(out)
	return out, nil
}

// List returns all of the tenant's lots in FIFO order.
func (l *Ledger) List(_ context.Context, tenantID string, opts domain.ListOpts) ([]domain.AcquisitionLot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.AcquisitionLot
	for _, lot := range l.lots {
		if lot.TenantID == tenantID && inWindow(lot.AcquiredAt, opts) {
			out = append(out, lot)
		}
	}
	sortFIFO(out)
	return page(out, opts), nil
}

// CreateTransaction inserts a normalized transaction.
func (l *Ledger) CreateTransaction(_ context.Context, tx domain.DisposalTransaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.txs[tx.ID]; ok {
		return fmt.Errorf("memory: create transaction %s: %w", tx.ID, domain.ErrAlreadyExists)
	}
	l.txs[tx.ID] = tx
	return nil
}

// GetTransaction returns the tenant's transaction.
func (l *Ledger) GetTransaction(_ context.Context, tenantID string, id uuid.UUID) (domain.DisposalTransaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.txs[id]
	if !ok || tx.TenantID != tenantID {
		return domain.DisposalTransaction{}, domain.ErrNotFound
	}
	return tx, nil
}

// Transactions adapts the ledger to domain.TransactionStore.
func (l *Ledger) Transactions() domain.TransactionStore {
	return transactionStore{l}
}

type transactionStore struct{ l *Ledger }

func (s transactionStore) Create(ctx context.Context, tx domain.DisposalTransaction) error {
	return s.l.CreateTransaction(ctx, tx)
}

func (s transactionStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (domain.DisposalTransaction, error) {
	return s.l.GetTransaction(ctx, tenantID, id)
}

// ListByDisposal returns the committed trail of one disposal in FIFO order.
func (l *Ledger) ListByDisposal(_ context.Context, tenantID string, disposalID uuid.UUID) ([]domain.AllocationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byDisposalLocked(tenantID, disposalID), nil
}

func (l *Ledger) byDisposalLocked(tenantID string, disposalID uuid.UUID) []domain.AllocationRecord {
	var out []domain.AllocationRecord
	for _, r := range l.allocs {
		if r.TenantID == tenantID && r.DisposalID == disposalID {
			out = append(out, r)
		}
	}
	return out
}

// ListByTenant returns the tenant's records in commit order.
func (l *Ledger) ListByTenant(_ context.Context, tenantID string, opts domain.ListOpts) ([]domain.AllocationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.AllocationRecord
	for _, r := range l.allocs {
		if r.TenantID == tenantID && inWindow(r.CreatedAt, opts) {
			out = append(out, r)
		}
	}
	return page(out, opts), nil
}

// WithinTx stages every write made by fn and applies them together only if
// fn succeeds.
func (l *Ledger) WithinTx(ctx context.Context, tenantID string, fn func(tx domain.LedgerTx) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	st := &stagedTx{l: l, tenantID: tenantID, remaining: make(map[uuid.UUID]decimal.Decimal)}
	if err := fn(st); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, rem := range st.remaining {
		lot := l.lots[id]
		lot.RemainingQuantity = rem
		lot.Version++
		l.lots[id] = lot
	}
	l.allocs = append(l.allocs, st.records...)
	return nil
}

type stagedTx struct {
	l         *Ledger
	tenantID  string
	remaining map[uuid.UUID]decimal.Decimal
	records   []domain.AllocationRecord
}

func (t *stagedTx) ListAllocations(_ context.Context, disposalID uuid.UUID) ([]domain.AllocationRecord, error) {
	t.l.mu.RLock()
	out := t.l.byDisposalLocked(t.tenantID, disposalID)
	t.l.mu.RUnlock()
	for _, r := range t.records {
		if r.DisposalID == disposalID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *stagedTx) SaveAllocationRecords(_ context.Context, records []domain.AllocationRecord) error {
	t.l.mu.RLock()
	defer t.l.mu.RUnlock()
	var staged []domain.AllocationRecord
	for _, r := range records {
		if containsPair(t.l.allocs, r) || containsPair(t.records, r) || containsPair(staged, r) {
			return fmt.Errorf("memory: insert allocation %s/%s: %w", r.DisposalID, r.LotID, domain.ErrAlreadyExists)
		}
		r.TenantID = t.tenantID
		staged = append(staged, r)
	}
	t.records = append(t.records, staged...)
	return nil
}

func containsPair(records []domain.AllocationRecord, r domain.AllocationRecord) bool {
	for _, existing := range records {
		if existing.DisposalID == r.DisposalID && existing.LotID == r.LotID {
			return true
		}
	}
	return false
}

func (t *stagedTx) DecrementLot(_ context.Context, lotID uuid.UUID, amount decimal.Decimal) error {
	rem, ok := t.remaining[lotID]
	if !ok {
		t.l.mu.RLock()
		lot, found := t.l.lots[lotID]
		t.l.mu.RUnlock()
		if !found || lot.TenantID != t.tenantID {
			return fmt.Errorf("memory: decrement lot %s: %w", lotID, domain.ErrNotFound)
		}
		rem = lot.RemainingQuantity
	}
	if rem.LessThan(amount) {
		return fmt.Errorf("memory: decrement lot %s by %s: %w", lotID, amount, domain.ErrConflict)
	}
	rem = rem.Sub(amount)
	if rem.IsNegative() {
		rem = decimal.Zero
	}
	t.remaining[lotID] = rem
	return nil
}

func sortFIFO(lots []domain.AcquisitionLot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].AcquiredAt.Equal(lots[j].AcquiredAt) {
			return lots[i].AcquiredAt.Before(lots[j].AcquiredAt)
		}
		return bytes.Compare(lots[i].ID[:], lots[j].ID[:]) < 0
	})
}

// Compile-time interface checks.
var (
	_ domain.LotStore         = (*Ledger)(nil)
	_ domain.AllocationStore  = (*Ledger)(nil)
	_ domain.LedgerStore      = (*Ledger)(nil)
	_ domain.TransactionStore = transactionStore{}
)
