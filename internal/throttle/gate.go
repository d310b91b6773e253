// Package throttle spaces outbound calls to rate-limited providers.
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// Gate admits at most one call per interval across every caller sharing it.
// A slot taken by a call that later fails stays taken.
type Gate struct {
	lim      *rate.Limiter
	interval time.Duration
}

// NewGate returns a Gate with the given minimum spacing. A non-positive
// interval disables throttling.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{lim: rate.NewLimiter(rate.Every(interval), 1), interval: interval}
}

// Wait blocks until the next slot, or returns early when ctx ends or its
// deadline falls before the slot.
func (g *Gate) Wait(ctx context.Context) error {
	if err := g.lim.Wait(ctx); err != nil {
		return fmt.Errorf("throttle: wait: %w", err)
	}
	return nil
}

// Interval returns the configured spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Compile-time interface check.
var _ domain.CallGate = (*Gate)(nil)
