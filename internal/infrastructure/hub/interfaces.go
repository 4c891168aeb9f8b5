package hub

import (
	"context"
	"errors"
)

var (
	// ErrConnectionClosed is returned by Send on a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrSlowConsumer is returned by Send when the outbound queue is full.
	ErrSlowConsumer = errors.New("outbound queue full")
	// ErrMalformedFrame is returned for inbound frames that cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrHubNotRunning is returned when registering on a stopped hub.
	ErrHubNotRunning = errors.New("hub is not running")
)

// Connection represents one client transport session (SSE, WebSocket, ...).
//
// Send only enqueues the message for the connection's writer; it must never
// block on the remote peer. Messages sent on one connection are written in
// the order they were enqueued.
type Connection interface {
	ID() string
	Type() string
	Send(ctx context.Context, message *Message) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// State is the liveness state of a registered connection.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)
