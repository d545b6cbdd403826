package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ActorMiddleware 从请求里提取提交者身份（modifier）。
// 身份本身是边界层的受信输入：鉴权/签发在上游网关完成，
// 这里只负责取出来写进 context，供引擎当作 actor 使用。
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := extractBearer(c.Request.Header.Get("Authorization"))
		if actor == "" {
			// 兼容 WebSocket：浏览器无法自定义 Header，允许从 query ?actor= 中获取
			actor = strings.TrimSpace(c.Query("actor"))
		}
		if actor == "" {
			c.AbortWithStatusJSON(401, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "actor identity is missing",
			})
			return
		}

		c.Set("actor", actor)
		c.Next()
	}
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}

	// 处理 "Bearer" 前缀（大小写不敏感）
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}

	return ""
}
