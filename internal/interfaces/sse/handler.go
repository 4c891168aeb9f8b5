package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
)

type Config struct {
	SendQueue int
	KeepAlive time.Duration
}

type ServerSentEventHandler struct {
	hub    *hub.Hub
	logger logger.Logger
	cfg    Config
}

func NewServerSentEventHandler(hubInstance *hub.Hub, cfg Config, logger logger.Logger) *ServerSentEventHandler {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	return &ServerSentEventHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "sse"),
		cfg:    cfg,
	}
}

// Connect streams the channels named by the repeatable channel query
// parameter, serviceUpdates when none is given.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	channels := c.QueryArray("channel")
	if len(channels) == 0 {
		channels = []string{domain.ChannelServiceUpdates}
	}

	connID := "sse-" + uuid.NewString()
	conn := hub.NewSSEConnection(c.Request.Context(), connID, h.cfg.SendQueue, h.logger)

	if _, err := h.hub.Register(conn); err != nil {
		h.logger.Errorf("Failed to register connection: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	defer h.hub.Unregister(connID)

	for _, ch := range channels {
		if err := h.hub.Join(connID, ch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	_ = conn.Send(c.Request.Context(), hub.ConnectedMessage(connID))
	for _, ch := range channels {
		_ = conn.Send(c.Request.Context(), hub.JoinedMessage(ch))
	}

	hub.SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	h.logger.Infof("SSE connection %s subscribed to %v", connID, channels)

	if err := conn.Serve(c.Writer, h.cfg.KeepAlive); err != nil {
		h.logger.Debugf("SSE connection %s ended: %v", connID, err)
	}
	h.logger.Infof("SSE connection %s disconnected", connID)
}

func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.hub.Connections("sse")
	if connections == nil {
		connections = []hub.ConnectionInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connections,
		"hub_running":       h.hub.IsRunning(),
	})
}
