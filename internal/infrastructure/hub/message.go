package hub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-status-hub/internal/domain"
)

// Control message types. Status events use their domain.EventKind as type.
const (
	TypeConnected = "connected"
	TypeJoined    = "joined"
	TypeLeft      = "left"
	TypePong      = "pong"
	TypeKeepAlive = "keepalive"
	TypeError     = "error"
)

// Message is a server-to-client frame.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageBuilder helps build messages with fluent interface
type MessageBuilder struct {
	message *Message
}

func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{message: &Message{}}
}

func (mb *MessageBuilder) WithID(id string) *MessageBuilder {
	mb.message.ID = id
	return mb
}

func (mb *MessageBuilder) WithType(msgType string) *MessageBuilder {
	mb.message.Type = msgType
	return mb
}

func (mb *MessageBuilder) WithChannel(channel string) *MessageBuilder {
	mb.message.Channel = channel
	return mb
}

func (mb *MessageBuilder) WithPayload(payload any) *MessageBuilder {
	mb.message.Payload = payload
	return mb
}

func (mb *MessageBuilder) WithTimestamp(ts time.Time) *MessageBuilder {
	mb.message.Timestamp = ts
	return mb
}

// Build returns the constructed message, filling in a random ID and the
// current time when they were not set.
func (mb *MessageBuilder) Build() *Message {
	if mb.message.ID == "" {
		mb.message.ID = uuid.NewString()
	}
	if mb.message.Timestamp.IsZero() {
		mb.message.Timestamp = time.Now().UTC()
	}
	return mb.message
}

// EventMessage converts a committed status event into its broadcast frame.
func EventMessage(ev domain.StatusEvent) *Message {
	return NewMessageBuilder().
		WithType(string(ev.Kind)).
		WithChannel(domain.ChannelFor(ev.Kind)).
		WithPayload(ev.Payload).
		WithTimestamp(ev.Timestamp).
		Build()
}

func ConnectedMessage(connID string) *Message {
	return NewMessageBuilder().
		WithType(TypeConnected).
		WithPayload(map[string]string{"connectionId": connID}).
		Build()
}

func JoinedMessage(channel string) *Message {
	return NewMessageBuilder().WithType(TypeJoined).WithChannel(channel).Build()
}

func LeftMessage(channel string) *Message {
	return NewMessageBuilder().WithType(TypeLeft).WithChannel(channel).Build()
}

func PongMessage() *Message {
	return NewMessageBuilder().WithType(TypePong).Build()
}

func KeepAliveMessage() *Message {
	return NewMessageBuilder().WithType(TypeKeepAlive).Build()
}

// ErrorMessage creates an error frame. The connection stays open.
func ErrorMessage(code, message string) *Message {
	return NewMessageBuilder().
		WithType(TypeError).
		WithPayload(map[string]string{"code": code, "message": message}).
		Build()
}

// Client actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionPing  = "ping"
)

const maxChannelName = 128

// ClientFrame is a client-to-server frame, e.g. {"action":"join","channel":"serviceUpdates"}.
type ClientFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

// ParseClientFrame decodes an inbound frame. Frames that are not JSON
// objects, or that carry no action, are malformed.
func ParseClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	f.Action = strings.TrimSpace(f.Action)
	f.Channel = strings.TrimSpace(f.Channel)
	if f.Action == "" {
		return ClientFrame{}, fmt.Errorf("%w: missing action", ErrMalformedFrame)
	}
	if len(f.Channel) > maxChannelName {
		return ClientFrame{}, fmt.Errorf("%w: channel name too long", ErrMalformedFrame)
	}
	return f, nil
}
