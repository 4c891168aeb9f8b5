package domain

import (
	"strings"
	"time"
)

// EventKind names a committed state transition.
type EventKind string

const (
	ServiceCreated  EventKind = "serviceCreated"
	ServiceUpdated  EventKind = "serviceUpdated"
	ServiceDeleted  EventKind = "serviceDeleted"
	IncidentCreated EventKind = "incidentCreated"
	IncidentUpdated EventKind = "incidentUpdated"
	IncidentDeleted EventKind = "incidentDeleted"
)

// Entity returns the entity kind of the event, e.g. "service".
func (k EventKind) Entity() string {
	s := string(k)
	for _, suffix := range []string{"Created", "Updated", "Deleted"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}

// IsDeletion reports whether the event removes its entity.
func (k EventKind) IsDeletion() bool {
	return strings.HasSuffix(string(k), "Deleted")
}

// KnownEventKind reports whether k is produced by the gateway.
func KnownEventKind(k string) bool {
	switch EventKind(k) {
	case ServiceCreated, ServiceUpdated, ServiceDeleted,
		IncidentCreated, IncidentUpdated, IncidentDeleted:
		return true
	}
	return false
}

// Channels carrying status events.
const (
	ChannelServiceUpdates  = "serviceUpdates"
	ChannelIncidentUpdates = "incidentUpdates"
)

// ChannelFor returns the channel a given event kind is published on.
func ChannelFor(k EventKind) string {
	if k.Entity() == "incident" {
		return ChannelIncidentUpdates
	}
	return ChannelServiceUpdates
}

// StatusEvent is an immutable record of one committed transition. Payload is
// the persisted entity (Service, IncidentView) or, for deletions, a
// Tombstone.
type StatusEvent struct {
	Kind      EventKind
	EntityID  string
	Payload   any
	Timestamp time.Time
}

// Tombstone is the payload of a deletion event.
type Tombstone struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}
