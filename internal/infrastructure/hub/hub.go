package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-status-hub/internal/infrastructure/logger"
)

// Hub maintains named broadcast channels over a connection registry and fans
// messages out to channel members.
type Hub struct {
	registry *Registry

	running   bool
	runningMu sync.RWMutex

	logger logger.Logger

	sweepInterval time.Duration
	allowed       map[string]struct{} // nil allows any channel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Hub)

// WithSweepInterval sets how often closed connections are reaped.
func WithSweepInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sweepInterval = d
		}
	}
}

// WithChannels restricts client joins to the given channel names.
func WithChannels(names ...string) Option {
	return func(h *Hub) {
		h.allowed = make(map[string]struct{}, len(names))
		for _, n := range names {
			h.allowed[n] = struct{}{}
		}
	}
}

// New creates a new Hub instance
func New(logger logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		registry:      NewRegistry(),
		logger:        logger.WithField("component", "hub"),
		sweepInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start starts the hub's maintenance loop.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true

	h.wg.Add(1)
	go h.run()

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop stops the hub and disconnects all connections.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	if !h.running {
		h.runningMu.Unlock()
		return nil
	}
	h.running = false
	h.cancel()
	h.runningMu.Unlock()

	for _, conn := range h.registry.All() {
		h.registry.Unregister(conn.ID())
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("hub stop: %w", ctx.Err())
	}

	h.logger.Info("Hub stopped successfully")
	return nil
}

func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// Register adds conn to the registry and unregisters it as soon as its
// context is done.
func (h *Hub) Register(conn Connection) (string, error) {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if !h.running {
		return "", ErrHubNotRunning
	}

	handle := h.registry.Register(conn)
	h.logger.Infof("Connection %s registered (type: %s)", handle, conn.Type())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case <-conn.Context().Done():
			h.Unregister(handle)
		case <-h.ctx.Done():
		}
	}()
	return handle, nil
}

// Unregister is idempotent.
func (h *Hub) Unregister(handle string) {
	if h.registry.Unregister(handle) {
		h.logger.Infof("Connection %s unregistered", handle)
	}
}

// Join adds handle to channel. It fails only for channels outside the
// configured allow list; unknown handles are ignored.
func (h *Hub) Join(handle, channel string) error {
	if !h.channelAllowed(channel) {
		return fmt.Errorf("unknown channel %q", channel)
	}
	if h.registry.Join(handle, channel) {
		h.logger.Debugf("Connection %s joined %s", handle, channel)
	}
	return nil
}

func (h *Hub) Leave(handle, channel string) {
	if h.registry.Leave(handle, channel) {
		h.logger.Debugf("Connection %s left %s", handle, channel)
	}
}

func (h *Hub) channelAllowed(channel string) bool {
	if channel == "" {
		return false
	}
	if h.allowed == nil {
		return true
	}
	_, ok := h.allowed[channel]
	return ok
}

// PublishReport summarizes one fan-out.
type PublishReport struct {
	Channel   string
	Delivered int
	Failed    []string
}

// Publish enqueues message for every current member of channel, in
// registration order. A member whose send fails is unregistered; the
// remaining members are still served.
func (h *Hub) Publish(ctx context.Context, channel string, message *Message) PublishReport {
	members := h.registry.Members(channel)
	report := PublishReport{Channel: channel}

	for _, conn := range members {
		if err := conn.Send(ctx, message); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// cancelled by the caller; keep the member
				report.Failed = append(report.Failed, conn.ID())
				continue
			}
			h.logger.Warnf("Failed to send %s to connection %s: %v", message.Type, conn.ID(), err)
			report.Failed = append(report.Failed, conn.ID())
			h.Unregister(conn.ID())
			continue
		}
		report.Delivered++
	}

	h.logger.Debugf("Published %s on %s to %d/%d members", message.Type, channel, report.Delivered, len(members))
	return report
}

// SendTo sends a message to a single connection.
func (h *Hub) SendTo(ctx context.Context, handle string, message *Message) error {
	conn, ok := h.registry.Get(handle)
	if !ok {
		return fmt.Errorf("connection %s not found", handle)
	}
	if err := conn.Send(ctx, message); err != nil {
		h.logger.Warnf("Failed to send %s to connection %s: %v", message.Type, handle, err)
		h.Unregister(handle)
		return err
	}
	return nil
}

// HandleFrame dispatches one inbound client frame. Malformed frames
// disconnect the sender.
func (h *Hub) HandleFrame(ctx context.Context, handle string, data []byte) {
	frame, err := ParseClientFrame(data)
	if err != nil {
		h.logger.Warnf("Dropping connection %s: %v", handle, err)
		h.Unregister(handle)
		return
	}

	switch frame.Action {
	case ActionJoin:
		if err := h.Join(handle, frame.Channel); err != nil {
			_ = h.SendTo(ctx, handle, ErrorMessage("unknown_channel", err.Error()))
			return
		}
		_ = h.SendTo(ctx, handle, JoinedMessage(frame.Channel))
	case ActionLeave:
		h.Leave(handle, frame.Channel)
		_ = h.SendTo(ctx, handle, LeftMessage(frame.Channel))
	case ActionPing:
		_ = h.SendTo(ctx, handle, PongMessage())
	default:
		_ = h.SendTo(ctx, handle, ErrorMessage("unknown_action", fmt.Sprintf("unknown action %q", frame.Action)))
	}
}

// ConnectionInfo describes a registered connection.
type ConnectionInfo struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Closed   bool     `json:"closed"`
	State    State    `json:"state"`
	Channels []string `json:"channels"`
}

// Connections lists registered connections, optionally filtered by type.
func (h *Hub) Connections(connType string) []ConnectionInfo {
	var out []ConnectionInfo
	for _, conn := range h.registry.All() {
		if connType != "" && conn.Type() != connType {
			continue
		}
		out = append(out, ConnectionInfo{
			ID:       conn.ID(),
			Type:     conn.Type(),
			Closed:   conn.IsClosed(),
			State:    h.registry.State(conn.ID()),
			Channels: h.registry.ChannelsOf(conn.ID()),
		})
	}
	return out
}

func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}

func (h *Hub) Channels() map[string]int {
	return h.registry.Channels()
}

// run is the maintenance loop: it reaps connections whose transport closed
// without their context watcher firing first.
func (h *Hub) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweepClosed()
		case <-h.ctx.Done():
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

func (h *Hub) sweepClosed() {
	for _, conn := range h.registry.All() {
		if conn.IsClosed() {
			h.Unregister(conn.ID())
			h.logger.Infof("Cleaned up closed connection %s", conn.ID())
		}
	}
}
