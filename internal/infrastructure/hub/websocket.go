package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-status-hub/internal/infrastructure/logger"
)

// WebSocketConfig holds the keepalive and buffering settings of WebSocket
// connections.
type WebSocketConfig struct {
	SendQueue      int
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		SendQueue:      256,
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
	}
}

// FrameHandler receives every inbound text frame of a connection.
type FrameHandler func(connID string, data []byte)

// WebSocketConnection implements Connection over gorilla/websocket. A single
// writer goroutine owns all writes to the socket.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger  logger.Logger
	cfg     WebSocketConfig
	onFrame FrameHandler

	send chan *Message
}

// NewWebSocketConnection wraps an upgraded socket and starts its read and
// write pumps. Call Start after the connection is registered.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	cfg WebSocketConfig,
	onFrame FrameHandler,
	logger logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultWebSocketConfig().SendQueue
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultWebSocketConfig().MaxMessageSize
	}

	return &WebSocketConnection{
		id:      id,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.WithField("connection_id", id),
		cfg:     cfg,
		onFrame: onFrame,
		send:    make(chan *Message, cfg.SendQueue),
	}
}

// Start launches the pumps.
func (c *WebSocketConnection) Start() {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	go c.writePump()
	go c.readPump()
}

func (c *WebSocketConnection) ID() string {
	return c.id
}

func (c *WebSocketConnection) Type() string {
	return "websocket"
}

// Send enqueues message without waiting for the peer.
func (c *WebSocketConnection) Send(ctx context.Context, message *Message) error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case c.send <- message:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close stops both pumps; the writer sends the close frame.
func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.send)
	c.cancel()

	c.logger.Info("WebSocket connection closed")
	return nil
}

func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				_ = c.Close()
				return
			}
		}
	}
}

func (c *WebSocketConnection) readPump() {
	defer func() {
		_ = c.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				c.logger.Warnf("WebSocket read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if c.onFrame != nil {
				c.onFrame(c.id, data)
			}
		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary message of length %d", len(data))
		}
	}
}
