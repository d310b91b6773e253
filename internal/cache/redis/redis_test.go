package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// testClient connects to BTCBASIS_TEST_REDIS_ADDR or skips the test.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("BTCBASIS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BTCBASIS_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyNamespacing(t *testing.T) {
	assert.Equal(t, "btcbasis:lock:commit:acme", key("lock", "commit:acme"))
	k := domain.RateKey{Provider: "primary", Currency: "USD", Date: time.Date(2024, 1, 2, 13, 0, 0, 0, time.UTC)}
	assert.Equal(t, "btcbasis:rate:primary:USD:2024-01-02", rateKey(k))
}

func TestNewFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := New(ctx, ClientConfig{Addr: "127.0.0.1:1", PoolSize: 1})
	assert.Error(t, err)
}

func TestRateCache_RoundTripAndInsertOnly(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	rc := NewRateCache(c)

	k := domain.RateKey{Provider: "test-" + uuid.NewString(), Currency: "USD", Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	t.Cleanup(func() { c.Underlying().Del(context.Background(), rateKey(k)) })

	_, err := rc.Get(ctx, k)
	require.ErrorIs(t, err, domain.ErrNotFound)

	obs := domain.RateObservation{Provider: k.Provider, Currency: k.Currency, Date: k.Date, Rate: decimal.RequireFromString("27123.45"), FetchedAt: time.Now()}
	require.NoError(t, rc.Set(ctx, obs))
	obs.Rate = decimal.NewFromInt(1)
	require.NoError(t, rc.Set(ctx, obs))

	got, err := rc.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "27123.45", got.Rate.String())
}

func TestCallGate_SpacesAcrossInstances(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	name := "test-" + uuid.NewString()
	a := NewCallGate(c, name, 150*time.Millisecond)
	b := NewCallGate(c, name, 150*time.Millisecond)

	start := time.Now()
	require.NoError(t, a.Wait(ctx))
	require.NoError(t, b.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestLockManager_ExclusiveUntilUnlock(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c)
	name := "test-" + uuid.NewString()

	unlock, err := lm.Acquire(context.Background(), name, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err = lm.Acquire(ctx, name, time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	again, err := lm.Acquire(context.Background(), name, time.Minute)
	require.NoError(t, err)
	again()
}

func TestSignalBus_StreamRead(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	sb := NewSignalBus(c)
	stream := "test-" + uuid.NewString()
	t.Cleanup(func() { c.Underlying().Del(context.Background(), key(stream)) })

	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("one")))
	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("two")))

	msgs, err := sb.StreamRead(ctx, stream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", string(msgs[0].Payload))

	rest, err := sb.StreamRead(ctx, stream, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "two", string(rest[0].Payload))
}
