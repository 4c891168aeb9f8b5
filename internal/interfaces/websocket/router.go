package websocket

import (
	"github.com/gin-gonic/gin"

	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
)

// InitWebSocketRouter mounts /ws and the connection listing.
func InitWebSocketRouter(logger logger.Logger, hubInstance *hub.Hub, cfg Config, rg *gin.RouterGroup) {
	wsHandler := NewWebSocketHandler(hubInstance, cfg, logger)

	rg.GET("/ws", wsHandler.Connect)
	rg.GET("/api/v1/ws/connections", wsHandler.GetConnections)
}
