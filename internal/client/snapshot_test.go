package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func svcEntry(id string, ms int) Entry {
	return Entry{Entity: "service", ID: id, UpdatedAt: at(ms), Data: json.RawMessage(`{"id":"` + id + `"}`)}
}

func TestSnapshot_ApplyIsIdempotent(t *testing.T) {
	s := NewSnapshot()

	assert.True(t, s.Apply(svcEntry("a", 10)))
	assert.False(t, s.Apply(svcEntry("a", 10)), "same timestamp twice")
	assert.False(t, s.Apply(svcEntry("a", 5)), "older never regresses")
	assert.True(t, s.Apply(svcEntry("a", 11)))

	got, ok := s.Get("service", "a")
	require.True(t, ok)
	assert.True(t, at(11).Equal(got.UpdatedAt))
}

func TestSnapshot_TombstoneBlocksStaleUpdates(t *testing.T) {
	s := NewSnapshot()
	s.Apply(svcEntry("a", 10))
	assert.True(t, s.Apply(Entry{Entity: "service", ID: "a", UpdatedAt: at(20), Deleted: true}))

	assert.False(t, s.Apply(svcEntry("a", 15)))
	assert.Empty(t, s.List("service"))

	got, ok := s.Get("service", "a")
	require.True(t, ok)
	assert.True(t, got.Deleted)
}

func TestSnapshot_EntitiesAreIndependent(t *testing.T) {
	s := NewSnapshot()
	s.Apply(svcEntry("a", 10))
	s.Apply(Entry{Entity: "incident", ID: "a", UpdatedAt: at(1)})

	assert.Len(t, s.List("service"), 1)
	assert.Len(t, s.List("incident"), 1)
}

func TestSnapshot_Replace(t *testing.T) {
	s := NewSnapshot()
	s.Apply(svcEntry("keep", 10))
	s.Apply(svcEntry("newer-locally", 50))
	s.Apply(svcEntry("gone", 10))
	s.Apply(Entry{Entity: "incident", ID: "other", UpdatedAt: at(1)})

	changed := s.Replace("service", []Entry{
		svcEntry("keep", 20),
		svcEntry("newer-locally", 40),
		svcEntry("fresh", 30),
	})

	ids := make([]string, 0, len(changed))
	for _, e := range changed {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"fresh", "gone", "keep"}, ids)

	live := s.List("service")
	require.Len(t, live, 3)
	assert.Equal(t, "fresh", live[0].ID)
	assert.Equal(t, "keep", live[1].ID)
	assert.Equal(t, "newer-locally", live[2].ID)
	assert.True(t, at(50).Equal(live[2].UpdatedAt))

	gone, ok := s.Get("service", "gone")
	require.True(t, ok)
	assert.True(t, gone.Deleted)
	assert.Nil(t, gone.Data)

	assert.Len(t, s.List("incident"), 1, "other entities untouched")
}

func TestEntryFromEvent(t *testing.T) {
	ts := at(7)

	e, isEvent, err := entryFromEvent(Frame{
		Type:      "serviceUpdated",
		Payload:   json.RawMessage(`{"id":"svc-1","status":"major_outage","updatedAt":"2020-01-01T00:00:00Z"}`),
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.True(t, isEvent)
	assert.Equal(t, "service", e.Entity)
	assert.Equal(t, "svc-1", e.ID)
	assert.True(t, ts.Equal(e.UpdatedAt), "frame timestamp wins")
	assert.False(t, e.Deleted)

	e, _, err = entryFromEvent(Frame{Type: "incidentDeleted", Payload: json.RawMessage(`{"id":"inc-1"}`), Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, "incident", e.Entity)
	assert.True(t, e.Deleted)
	assert.Nil(t, e.Data)

	_, isEvent, _ = entryFromEvent(Frame{Type: "pong"})
	assert.False(t, isEvent)

	_, isEvent, err = entryFromEvent(Frame{Type: "serviceCreated", Payload: json.RawMessage(`{}`)})
	assert.True(t, isEvent)
	assert.Error(t, err)
}
