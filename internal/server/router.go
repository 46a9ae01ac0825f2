package server

import (
	"net/http"
	"time"

	"storegateway/internal/auth"
	"storegateway/internal/config"
	"storegateway/internal/metrics"
	"storegateway/internal/mw"
	"storegateway/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、只读 REST 接口以及 WebSocket 端点。
func SetupRouter(cfg config.Config, hub *ws.Hub, verifier *auth.Verifier, h *Handler, rl *mw.RL) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	if rl == nil {
		rl = mw.NewRateLimiter(rate.Every(time.Second/20), 40, 2*time.Minute)
	}
	r.Use(mw.RateLimit(rl))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.ConnectionCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(auth.AuthMiddleware(verifier))
	api.GET("/presence", h.ListPresence)
	api.GET("/rooms/:id/messages", h.ListMessages)

	r.GET("/ws", ws.Serve(hub, cfg))
	return r
}
