package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-status-hub/internal/infrastructure/hub"
	"go-status-hub/internal/infrastructure/logger"
)

// Config tunes the WebSocket endpoint.
type Config struct {
	HandshakeTimeout time.Duration
	Connection       hub.WebSocketConfig
}

// WebSocketHandler upgrades clients and hands their frames to the hub.
type WebSocketHandler struct {
	hub      *hub.Hub
	logger   logger.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hubInstance *hub.Hub, cfg Config, logger logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "websocket"),
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			// status pages are public; any origin may subscribe
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the request, registers the connection and greets it with
// a connected frame. Channels are joined by the client with join frames.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	connID := "ws-" + uuid.NewString()
	onFrame := func(id string, data []byte) {
		h.hub.HandleFrame(context.Background(), id, data)
	}
	wsConn := hub.NewWebSocketConnection(connID, conn, h.cfg.Connection, onFrame, h.logger)

	if _, err := h.hub.Register(wsConn); err != nil {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		_ = conn.Close()
		return
	}
	if err := h.hub.SendTo(c.Request.Context(), connID, hub.ConnectedMessage(connID)); err != nil {
		_ = conn.Close()
		return
	}
	wsConn.Start()

	h.logger.Infof("WebSocket connection %s connected and registered", connID)
	<-wsConn.Context().Done()
	h.logger.Infof("WebSocket connection %s disconnected", connID)
}

// GetConnections lists the registered WebSocket connections.
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.Connections("websocket")
	if connections == nil {
		connections = []hub.ConnectionInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connections,
		"hub_running":       h.hub.IsRunning(),
	})
}
