package hub

import (
	"context"
	"sync"
)

type mockConnection struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	sendErr error

	mu       sync.Mutex
	closed   bool
	received []*Message
}

func newMockConnection(id string) *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConnection{id: id, ctx: ctx, cancel: cancel}
}

func (m *mockConnection) ID() string   { return m.id }
func (m *mockConnection) Type() string { return "mock" }

func (m *mockConnection) Send(ctx context.Context, message *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnectionClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, message)
	return nil
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	return nil
}

func (m *mockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConnection) Context() context.Context { return m.ctx }

func (m *mockConnection) messages() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.received...)
}

func (m *mockConnection) types() []string {
	var out []string
	for _, msg := range m.messages() {
		out = append(out, msg.Type)
	}
	return out
}
