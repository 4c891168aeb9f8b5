package client

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Entry is the locally held state of one entity.
type Entry struct {
	Entity    string          `json:"entity"`
	ID        string          `json:"id"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Deleted   bool            `json:"deleted,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type entryKey struct {
	entity string
	id     string
}

// Snapshot is the client's local copy of server state. Writes are guarded
// by timestamp: an entry never moves back to an older UpdatedAt, so applying
// the same event twice has the effect of applying it once. Deleted entries
// are kept as tombstones.
type Snapshot struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[entryKey]Entry)}
}

// Apply stores e when it is newer than the held entry and reports whether
// it did.
func (s *Snapshot) Apply(e Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(e)
}

func (s *Snapshot) apply(e Entry) bool {
	k := entryKey{e.Entity, e.ID}
	if held, ok := s.entries[k]; ok && !e.UpdatedAt.After(held.UpdatedAt) {
		return false
	}
	s.entries[k] = e
	return true
}

// Replace reconciles entity with a freshly fetched full listing. Listed
// entries are applied; live entries the listing omits become tombstones.
// It returns the entries that changed.
func (s *Snapshot) Replace(entity string, listing []Entry) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []Entry
	present := make(map[string]struct{}, len(listing))
	for _, e := range listing {
		e.Entity = entity
		present[e.ID] = struct{}{}
		if s.apply(e) {
			changed = append(changed, e)
		}
	}
	for k, held := range s.entries {
		if k.entity != entity || held.Deleted {
			continue
		}
		if _, ok := present[k.id]; ok {
			continue
		}
		tomb := Entry{Entity: entity, ID: k.id, UpdatedAt: held.UpdatedAt, Deleted: true}
		s.entries[k] = tomb
		changed = append(changed, tomb)
	}
	sortEntries(changed)
	return changed
}

// Get returns the held entry, tombstones included.
func (s *Snapshot) Get(entity, id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryKey{entity, id}]
	return e, ok
}

// List returns the live entries of entity ordered by id.
func (s *Snapshot) List(entity string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for k, e := range s.entries {
		if k.entity == entity && !e.Deleted {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Entity != entries[j].Entity {
			return entries[i].Entity < entries[j].Entity
		}
		return entries[i].ID < entries[j].ID
	})
}
