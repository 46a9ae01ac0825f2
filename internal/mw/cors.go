package mw

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// OriginAllowed dev 环境允许所有来源，其余环境只允许与请求 Host 同源。
// WebSocket 升级与 REST 接口共用这一规则。
func OriginAllowed(env, origin, host string) bool {
	if origin == "" {
		return true
	}
	if env == "dev" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == host
}

// CORS 返回跨域中间件。
func CORS(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if OriginAllowed(env, origin, c.Request.Host) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
