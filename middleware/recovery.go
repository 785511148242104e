package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/response"
	"github.com/wyfcoding/quant/xerrors"
)

// Recovery 把处理链中的 panic 转为 500，堆栈只进日志.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.ErrorContext(c.Request.Context(), "panic recovered",
				"panic", fmt.Sprint(rec),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"stack", string(debug.Stack()),
			)
			if !c.Writer.Written() {
				response.Error(c, xerrors.Internal("unexpected server error", nil))
			}
			c.Abort()
		}()
		c.Next()
	}
}
