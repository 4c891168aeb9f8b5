package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-status-hub/internal/application/gateway"
	"go-status-hub/internal/infrastructure/auth"
	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
	"go-status-hub/internal/infrastructure/store"
	"go-status-hub/internal/interfaces/rest/v1/handler"
	"go-status-hub/internal/interfaces/sse"
	"go-status-hub/internal/interfaces/websocket"
)

type routerDeps struct {
	hub       *hub.Hub
	gateway   *gateway.Gateway
	store     store.Store
	identity  *auth.Identity
	websocket websocket.Config
	sse       sse.Config
	ginLogger bool
}

func InitRouter(deps routerDeps, log logger.Logger) http.Handler {
	router := gin.New()
	if deps.ginLogger {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	router.Use(requestID())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/debug", func(c *gin.Context) {
		log.Debug("Debug endpoint hit")
		c.JSON(http.StatusOK, gin.H{"debug": "working"})
	})

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		isRunning := deps.hub.IsRunning()

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		storeErr := deps.store.Ping(ctx)

		status, code := "healthy", http.StatusOK
		if !isRunning || storeErr != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if storeErr != nil {
			log.Warnf("Store ping failed: %v", storeErr)
		}

		c.JSON(code, gin.H{
			"status":      status,
			"hub_running": isRunning,
			"store_ok":    storeErr == nil,
			"connections": deps.hub.ConnectionCount(),
			"channels":    deps.hub.Channels(),
		})
	})

	handler.InitRESTRouter(log, deps.gateway, deps.identity, rootGroup)
	sse.InitSSERouter(log, deps.hub, deps.sse, rootGroup)
	websocket.InitWebSocketRouter(log, deps.hub, deps.websocket, rootGroup)

	return router
}

// requestID tags each request with X-Request-ID, generating one when the
// caller sent none, and attaches it to the request context for logging.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(logger.ContextWithFields(c.Request.Context(), logger.Fields{"request_id": id}))
		c.Next()
	}
}
