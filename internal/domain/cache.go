package domain

import (
	"context"
	"time"
)

// RateCache is a fast read-through layer in front of RateStore.
type RateCache interface {
	Get(ctx context.Context, key RateKey) (RateObservation, error)
	Set(ctx context.Context, obs RateObservation) error
}

// CallGate spaces outbound provider calls. Wait blocks until the caller may
// make one call, or until ctx is done.
type CallGate interface {
	Wait(ctx context.Context) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable event stream.
type StreamMessage struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
