// Package middleware 提供定价 HTTP 服务使用的 Gin 中间件.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/contextx"
	"github.com/wyfcoding/quant/idgen"
)

// HeaderXRequestID 请求 ID 的请求头与响应头.
const HeaderXRequestID = "X-Request-ID"

// maxRequestIDLen 超长的外部 ID 视为无效，重新生成.
const maxRequestIDLen = 128

// RequestID 沿用调用方的请求 ID 或用雪花 ID 生成，写入 Context 与响应头.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = idgen.GenIDString()
		}
		c.Header(HeaderXRequestID, id)

		ctx := contextx.WithIP(contextx.WithRequestID(c.Request.Context(), id), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
