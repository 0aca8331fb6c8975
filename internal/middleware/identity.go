package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader 由上游网关在完成认证后注入。
	UserIDHeader = "X-User-ID"
	userIDKey    = "userID"
	anonymousID  = "anonymous"
)

// UserIdentity 从网关注入的请求头中读取用户 ID 并存入 Gin 上下文，缺失时记为匿名用户。
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			userID = anonymousID
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID 返回当前请求的用户 ID。
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return anonymousID
}
