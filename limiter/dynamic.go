package limiter

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/wyfcoding/quant/config"
)

// DynamicLimiter 支持热更新的限流器封装，未设置时放行所有请求。
type DynamicLimiter struct {
	value atomic.Pointer[Limiter]
}

// NewDynamicLimiter 创建动态限流器。
func NewDynamicLimiter(initial Limiter) *DynamicLimiter {
	d := &DynamicLimiter{}
	d.Update(initial)
	return d
}

// NewDynamicFromConfig 按限流配置创建，并可作为配置热更新回调的目标。
func NewDynamicFromConfig(cfg config.RateLimitConfig) *DynamicLimiter {
	d := &DynamicLimiter{}
	d.Apply(cfg)
	return d
}

// Update 替换当前限流器实例，nil 表示关闭限流。
func (d *DynamicLimiter) Update(l Limiter) {
	if l == nil {
		d.value.Store(nil)
		return
	}
	d.value.Store(&l)
}

// Apply 按配置重建令牌桶. 未启用或速率为 0 时关闭限流，burst 缺省等于速率。
func (d *DynamicLimiter) Apply(cfg config.RateLimitConfig) {
	if !cfg.Enabled || cfg.Rate <= 0 {
		d.Update(nil)
		slog.Info("rate limiter disabled")
		return
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Rate
	}
	d.Update(NewLocalLimiter(rate.Limit(cfg.Rate), burst))
	slog.Info("rate limiter updated", "rate", cfg.Rate, "burst", burst)
}

// Allow 实现 Limiter 接口。
func (d *DynamicLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if d == nil {
		return true, nil
	}
	l := d.value.Load()
	if l == nil {
		return true, nil
	}
	return (*l).Allow(ctx, key)
}
