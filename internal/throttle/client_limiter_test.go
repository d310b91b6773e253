package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiter_PerKeyBuckets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClientLimiter(1, 2)
	c.now = func() time.Time { return now }

	assert.True(t, c.Allow("10.0.0.1"))
	assert.True(t, c.Allow("10.0.0.1"))
	assert.False(t, c.Allow("10.0.0.1"))
	assert.True(t, c.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, c.Allow("10.0.0.1"))
	assert.False(t, c.Allow("10.0.0.1"))
}

func TestClientLimiter_SweepsIdleKeys(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClientLimiter(5, 5)
	c.now = func() time.Time { return now }

	c.Allow("a")
	c.Allow("b")
	assert.Equal(t, 2, c.Len())

	now = now.Add(11 * time.Minute)
	c.Allow("c")
	assert.Equal(t, 1, c.Len())
}
