package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-status-hub/internal/domain"
)

// Frame is one server-to-client message.
type Frame struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Command is one client-to-server message.
type Command struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

// Transport is an established live connection.
type Transport interface {
	Send(ctx context.Context, cmd Command) error
	// Read blocks until the next frame arrives or the transport fails.
	Read() (Frame, error)
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// Fetcher reads the current full state behind a channel over the ordinary
// read path.
type Fetcher interface {
	Fetch(ctx context.Context, channel string) ([]Entry, error)
}

// entityOf returns the entity kind whose events a channel carries.
func entityOf(channel string) string {
	if channel == domain.ChannelIncidentUpdates {
		return "incident"
	}
	return "service"
}

type identity struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// entryFromDocument builds an entry from a stored document.
func entryFromDocument(entity string, raw json.RawMessage) (Entry, error) {
	var id identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Entry{}, fmt.Errorf("decode %s: %w", entity, err)
	}
	if id.ID == "" {
		return Entry{}, fmt.Errorf("decode %s: missing id", entity)
	}
	return Entry{Entity: entity, ID: id.ID, UpdatedAt: id.UpdatedAt, Data: raw}, nil
}

// entryFromEvent builds an entry from a status event frame. ok is false for
// frames that are not status events.
func entryFromEvent(f Frame) (Entry, bool, error) {
	if !domain.KnownEventKind(f.Type) {
		return Entry{}, false, nil
	}
	kind := domain.EventKind(f.Type)
	e, err := entryFromDocument(kind.Entity(), f.Payload)
	if err != nil {
		return Entry{}, true, err
	}
	e.UpdatedAt = f.Timestamp
	if kind.IsDeletion() {
		e.Deleted = true
		e.Data = nil
	}
	return e, true, nil
}
