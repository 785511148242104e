// Package limiter 提供 HTTP 入口的令牌桶限流与定价回滚的并发控制。
package limiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/wyfcoding/quant/xerrors"
)

// ErrRateLimited 请求速率超过令牌桶配额。
var ErrRateLimited = xerrors.New(xerrors.ErrLimitExceeded, 429102, "rate limit exceeded", "", nil)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 是一个基于令牌桶算法的进程内全局限流器，key 不参与计算。
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter r 为每秒令牌数，b 为桶容量。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{limiter: rate.NewLimiter(r, b)}
}

func (l *LocalLimiter) Allow(context.Context, string) (bool, error) {
	return l.limiter.Allow(), nil
}
