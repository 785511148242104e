package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/config"
	"github.com/wyfcoding/quant/xerrors"
)

func TestDynamicLimiterApply(t *testing.T) {
	ctx := context.Background()
	d := NewDynamicFromConfig(config.RateLimitConfig{Enabled: true, Rate: 1, Burst: 2})

	for range 2 {
		ok, err := d.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := d.Allow(ctx, "10.0.0.1")
	assert.False(t, ok, "burst exhausted")

	d.Apply(config.RateLimitConfig{Enabled: false})
	ok, _ = d.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "disabled limiter lets everything through")

	var nilLimiter *DynamicLimiter
	ok, _ = nilLimiter.Allow(ctx, "")
	assert.True(t, ok)
}

func TestSlots(t *testing.T) {
	l := NewSlots(1)
	require.NoError(t, l.Acquire(context.Background()))
	assert.False(t, l.TryAcquire())
	assert.Equal(t, 1, l.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.True(t, errors.Is(err, xerrors.ErrDeadline))

	l.Release()
	assert.True(t, l.TryAcquire())
	l.Release()
	l.Release()
	assert.Equal(t, 0, l.InUse())

	unlimited := NewSlots(0)
	for range 10 {
		assert.True(t, unlimited.TryAcquire())
	}
}
