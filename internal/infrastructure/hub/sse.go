package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"

	"go-status-hub/internal/infrastructure/logger"
)

// SSEConnection implements Connection for Server-Sent Events. Frames are
// queued by Send and written by Serve, which runs on the request goroutine.
type SSEConnection struct {
	id string

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger
	send   chan *Message
}

// NewSSEConnection creates a connection bound to the request context: it is
// closed when the client goes away.
func NewSSEConnection(ctx context.Context, id string, queue int, logger logger.Logger) *SSEConnection {
	if queue <= 0 {
		queue = 256
	}
	rctx, cancel := context.WithCancel(ctx)

	return &SSEConnection{
		id:     id,
		ctx:    rctx,
		cancel: cancel,
		logger: logger.WithField("connection_id", id),
		send:   make(chan *Message, queue),
	}
}

func (c *SSEConnection) ID() string {
	return c.id
}

func (c *SSEConnection) Type() string {
	return "sse"
}

func (c *SSEConnection) Send(ctx context.Context, message *Message) error {
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

func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	c.logger.Info("SSE connection closed")
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// SetSSEHeaders writes the SSE response headers.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For nginx
}

// Serve writes queued frames, plus a keepalive frame every keepAlive, until
// the connection closes or a write fails. A write failure closes the
// connection.
func (c *SSEConnection) Serve(w http.ResponseWriter, keepAlive time.Duration) error {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			if err := c.write(w, message); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.write(w, KeepAliveMessage()); err != nil {
				return err
			}
		case <-c.ctx.Done():
			_ = c.Close()
			return nil
		}
	}
}

func (c *SSEConnection) write(w http.ResponseWriter, message *Message) error {
	err := sse.Encode(w, sse.Event{
		Id:    message.ID,
		Event: message.Type,
		Data:  message,
	})
	if err != nil {
		c.logger.Errorf("Failed to write message: %v", err)
		_ = c.Close()
		return fmt.Errorf("sse write: %w", err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
