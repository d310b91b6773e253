package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// RateStore keeps rate observations in a map keyed by provider, currency and
// day.
type RateStore struct {
	mu  sync.RWMutex
	obs map[string]domain.RateObservation
}

// NewRateStore returns an empty RateStore.
func NewRateStore() *RateStore {
	return &RateStore{obs: make(map[string]domain.RateObservation)}
}

// Get returns the observation for key or domain.ErrNotFound.
func (s *RateStore) Get(_ context.Context, key domain.RateKey) (domain.RateObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.obs[key.String()]
	if !ok {
		return domain.RateObservation{}, domain.ErrNotFound
	}
	return o, nil
}

// Save stores o unless its key is already present.
func (s *RateStore) Save(_ context.Context, o domain.RateObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Date = domain.NormalizeDate(o.Date)
	k := o.Key().String()
	if _, ok := s.obs[k]; ok {
		return nil
	}
	s.obs[k] = o
	return nil
}

// Len returns the number of stored observations.
func (s *RateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.obs)
}

// AuditStore keeps audit entries in a slice.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditStore returns an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Log appends an entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	if event == "" {
		return fmt.Errorf("memory: log audit event: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if inWindow(e.CreatedAt, opts) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, opts), nil
}

func inWindow(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && !t.Before(*opts.Until) {
		return false
	}
	return true
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface checks.
var (
	_ domain.RateStore  = (*RateStore)(nil)
	_ domain.AuditStore = (*AuditStore)(nil)
)
