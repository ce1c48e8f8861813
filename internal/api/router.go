package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"vacuum-rental-backend/config"
	"vacuum-rental-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/machines", caching, h.ListMachines)
		api.GET("/machines/:id", h.GetMachine)

		api.POST("/sessions", h.StartSession)
		api.GET("/sessions/:id", h.GetSession)
		api.POST("/sessions/:id/stop", h.StopSession)

		api.GET("/users/:id", h.GetUser)
	}

	// The gateway must never be throttled into a redelivery storm, and the
	// realtime channel is long-lived; both stay outside the rate limiter.
	r.POST("/webhooks/payment", h.PaymentWebhook)
	r.GET("/ws", h.Websocket)

	return r
}
