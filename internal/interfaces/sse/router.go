package sse

import (
	"github.com/gin-gonic/gin"

	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, hubInstance *hub.Hub, cfg Config, rg *gin.RouterGroup) {
	sseHandler := NewServerSentEventHandler(hubInstance, cfg, logger)

	rg.GET("/sse", sseHandler.Connect)
	rg.GET("/api/v1/sse/connections", sseHandler.GetConnections)
}
