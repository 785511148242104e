package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/response"
	"github.com/wyfcoding/quant/xerrors"
)

// TimeoutMiddleware 给请求 Context 设截止时间，回滚在时间步之间检查它.
// 处理器未写响应而截止时间已过时补写 504.
func TimeoutMiddleware(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			response.Error(c, xerrors.Derive(xerrors.ErrDeadline, "request exceeded %s", d))
			c.Abort()
		}
	}
}
