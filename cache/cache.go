// Package cache 提供定价结果的缓存抽象与基于 bigcache 的进程内实现。
package cache

import (
	"context"
	"time"

	"github.com/wyfcoding/quant/xerrors"
)

// ErrMiss 缓存未命中.
var ErrMiss = xerrors.New(xerrors.ErrNotFound, 404201, "cache miss", "", nil)

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Nop 总是未命中的缓存，用于关闭缓存的部署.
type Nop struct{}

func (Nop) Get(context.Context, string, any) error                { return ErrMiss }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error               { return nil }
func (Nop) Exists(context.Context, string) (bool, error)          { return false, nil }
func (Nop) Close() error                                          { return nil }
