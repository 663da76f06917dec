package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/kaanhena/knchat-server/internal/config"
	"github.com/kaanhena/knchat-server/internal/metrics"
	"github.com/kaanhena/knchat-server/internal/mw"
	"github.com/kaanhena/knchat-server/internal/service"
	"github.com/kaanhena/knchat-server/internal/ws"
)

// SetupRouter 统一初始化 Gin 中间件、认证 API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, accounts *service.AccountService, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.CORS(cfg.Env))
	r.Use(metrics.GinMiddleware())
	// 控制单个 IP+路由的速率，顺带限制验证码和密码的暴力尝试。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": hub.Online()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(accounts)
	authGroup := r.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/verify", h.Verify)
	authGroup.POST("/login", h.Login)

	r.GET("/ws", ws.Serve(hub, cfg))

	return r
}
