package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/limiter"
	"github.com/wyfcoding/quant/response"
	"github.com/wyfcoding/quant/xerrors"
)

// RateLimitMiddleware 以客户端 IP 为 key 询问限流器，拒绝时返回 429 与 Retry-After.
// 限流器自身出错时放行.
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := c.ClientIP()
		allowed, err := l.Allow(ctx, key)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "rate limiter failed, letting request through", "key", key, "error", err)
		case !allowed:
			slog.WarnContext(ctx, "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			c.Header("Retry-After", "1")
			response.Error(c, xerrors.Derive(limiter.ErrRateLimited, "request from %s rejected", key))
			c.Abort()
			return
		}
		c.Next()
	}
}
