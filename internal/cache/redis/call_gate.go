package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

//go:embed scripts/call_gate.lua
var callGateLua string

// maxGateSleep caps a single sleep so a cancelled context is noticed promptly.
const maxGateSleep = 250 * time.Millisecond

// CallGate implements domain.CallGate across processes. The first caller to
// set the gate key owns the slot; the key expires after the interval.
type CallGate struct {
	rdb      *redis.Client
	script   *redis.Script
	name     string
	interval time.Duration
}

// NewCallGate creates a gate named name with the given minimum spacing.
func NewCallGate(c *Client, name string, interval time.Duration) *CallGate {
	return &CallGate{
		rdb:      c.Underlying(),
		script:   redis.NewScript(callGateLua),
		name:     name,
		interval: interval,
	}
}

// Wait blocks until this caller owns the next slot.
func (g *CallGate) Wait(ctx context.Context) error {
	if g.interval <= 0 {
		return nil
	}
	k := key("gate", g.name)
	for {
		wait, err := g.script.Run(ctx, g.rdb, []string{k}, g.interval.Milliseconds()).Int64()
		if err != nil {
			return fmt.Errorf("redis: call gate %s: %w", g.name, err)
		}
		if wait == 0 {
			return nil
		}

		d := time.Duration(wait) * time.Millisecond
		if d > maxGateSleep {
			d = maxGateSleep
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: call gate %s: %w", g.name, ctx.Err())
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.CallGate = (*CallGate)(nil)
