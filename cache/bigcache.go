package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/wyfcoding/quant/config"
)

// BigCache 实现了 Cache 接口，使用 allegro/bigcache 作为底层存储。
// 所有条目共享 LifeWindow，Set 的 expiration 参数被忽略。
type BigCache struct {
	cache *bigcache.BigCache
}

// NewBigCache 按配置创建缓存. LifeWindow 为 0 时返回 Nop.
func NewBigCache(ctx context.Context, cfg config.BigCacheConfig) (Cache, error) {
	if cfg.LifeWindow <= 0 {
		return Nop{}, nil
	}
	bc := bigcache.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		bc.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		bc.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		bc.MaxEntrySize = cfg.MaxEntrySize
	}
	bc.HardMaxCacheSize = cfg.HardMaxCacheSize
	bc.Verbose = cfg.Verbose

	c, err := bigcache.New(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("init bigcache: %w", err)
	}
	slog.Info("bigcache initialized", "life_window", cfg.LifeWindow, "shards", bc.Shards, "hard_max_mb", cfg.HardMaxCacheSize)
	return &BigCache{cache: c}, nil
}

// Get value 必须是指针，缓存的 JSON 会反序列化到其中。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(data, value)
}

func (c *BigCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 键不存在时不报错。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

func (c *BigCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := c.cache.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, nil
	}
	return false, err
}

// Len 当前条目数.
func (c *BigCache) Len() int {
	return c.cache.Len()
}

func (c *BigCache) Close() error {
	return c.cache.Close()
}
