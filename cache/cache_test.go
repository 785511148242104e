package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/quant/config"
)

type quote struct {
	Value float64 `json:"value"`
	Delta float64 `json:"delta"`
}

func newTestCache(t *testing.T) Cache {
	t.Helper()
	c, err := NewBigCache(context.Background(), config.BigCacheConfig{
		LifeWindow:   time.Minute,
		CleanWindow:  time.Minute,
		Shards:       16,
		MaxEntrySize: 128,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBigCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var got quote
	assert.True(t, errors.Is(c.Get(ctx, "k", &got), ErrMiss))

	require.NoError(t, c.Set(ctx, "k", quote{Value: 10.45, Delta: 0.637}, 0))
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, quote{Value: 10.45, Delta: 0.637}, got)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k", "absent"))
	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.(*BigCache).Len())
}

func TestDisabledCacheIsNop(t *testing.T) {
	c, err := NewBigCache(context.Background(), config.BigCacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, c)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", 1, 0))
	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrMiss)
}
