package hub

import (
	"sort"
	"sync"
)

type entry struct {
	conn     Connection
	seq      uint64
	state    State
	channels map[string]struct{}
}

// Registry tracks live connections and their channel memberships. Every
// operation on an unknown handle is a no-op: disconnect races are expected.
type Registry struct {
	mu       sync.RWMutex
	seq      uint64
	entries  map[string]*entry
	channels map[string]map[string]*entry // channel -> handle -> entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		channels: make(map[string]map[string]*entry),
	}
}

// Register adds conn with an empty membership set and returns its handle.
// Registering an already-registered connection returns the same handle.
func (r *Registry) Register(conn Connection) string {
	handle := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[handle]; ok {
		return handle
	}
	r.seq++
	r.entries[handle] = &entry{
		conn:     conn,
		seq:      r.seq,
		state:    StateOpen,
		channels: make(map[string]struct{}),
	}
	return handle
}

// Unregister removes the connection from every channel, discards the handle
// and closes the transport. It reports whether anything was removed.
func (r *Registry) Unregister(handle string) bool {
	r.mu.Lock()
	e, ok := r.entries[handle]
	if ok {
		e.state = StateClosing
		for ch := range e.channels {
			delete(r.channels[ch], handle)
		}
		delete(r.entries, handle)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	_ = e.conn.Close()

	r.mu.Lock()
	e.state = StateClosed
	r.mu.Unlock()
	return true
}

// Join adds the connection to channel, creating the channel if needed.
func (r *Registry) Join(handle, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle]
	if !ok {
		return false
	}
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]*entry)
		r.channels[channel] = members
	}
	members[handle] = e
	e.channels[channel] = struct{}{}
	return true
}

// Leave removes the connection from channel. The channel itself is kept.
func (r *Registry) Leave(handle, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle]
	if !ok {
		return false
	}
	if _, member := e.channels[channel]; !member {
		return false
	}
	delete(e.channels, channel)
	delete(r.channels[channel], handle)
	return true
}

// Members returns the current members of channel in registration order.
func (r *Registry) Members(channel string) []Connection {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.channels[channel]))
	for _, e := range r.channels[channel] {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	return connectionsBySeq(entries)
}

// All returns every registered connection in registration order.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	return connectionsBySeq(entries)
}

func (r *Registry) Get(handle string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[handle]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// State returns the liveness state of handle; unknown handles are closed.
func (r *Registry) State(handle string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[handle]; ok {
		return e.state
	}
	return StateClosed
}

// ChannelsOf returns the sorted channel memberships of handle.
func (r *Registry) ChannelsOf(handle string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[handle]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.channels))
	for ch := range e.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Channels returns every known channel with its member count. Empty
// channels are included.
func (r *Registry) Channels() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.channels))
	for ch, members := range r.channels {
		out[ch] = len(members)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func connectionsBySeq(entries []*entry) []Connection {
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Connection, len(entries))
	for i, e := range entries {
		out[i] = e.conn
	}
	return out
}
