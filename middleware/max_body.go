package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/quant/response"
)

// MaxBodyBytes 声明长度超限的请求直接 413；未声明长度的请求体由 http.MaxBytesReader
// 在读取时截断，解码方据 *http.MaxBytesError 返回 413. limit <= 0 时不限制.
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if n := c.Request.ContentLength; n > limit {
			response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large",
				fmt.Sprintf("%d bytes declared, limit is %d", n, limit))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
