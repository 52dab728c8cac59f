package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"msgrelay/backend/internal/dispatch"
)

// DefaultBodyLimit 默认请求体大小限制
const DefaultBodyLimit = 1 << 20 // 1MB

// BodySizeLimit 限制请求体大小的中间件
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultBodyLimit
	}

	return func(c *gin.Context) {
		// 检查 Content-Length 头
		if c.Request.ContentLength > maxBytes {
			for k, v := range dispatch.Headers() {
				c.Header(k, v)
			}
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dispatch.ErrorBody{
				Error:   "Request body too large",
				Details: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
			})
			return
		}

		// 没有 Content-Length 的请求在读取时截断
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}
