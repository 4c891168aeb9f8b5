package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/logger"
)

var errDialRefused = errors.New("connection refused")

// fakeTransport acknowledges joins like the hub does. Frames pushed with
// push are delivered in order.
type fakeTransport struct {
	in       chan Frame
	closed   chan struct{}
	once     sync.Once
	rejectOn string
	silent   bool

	mu   sync.Mutex
	sent []Command
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan Frame, 64), closed: make(chan struct{})}
}

func (t *fakeTransport) Send(_ context.Context, cmd Command) error {
	select {
	case <-t.closed:
		return errors.New("closed")
	default:
	}
	t.mu.Lock()
	t.sent = append(t.sent, cmd)
	t.mu.Unlock()

	if cmd.Action == "join" && !t.silent {
		if cmd.Channel == t.rejectOn {
			t.in <- Frame{Type: "error", Payload: json.RawMessage(`"unknown channel"`)}
			return nil
		}
		t.in <- Frame{Type: "joined", Channel: cmd.Channel}
	}
	return nil
}

func (t *fakeTransport) Read() (Frame, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-t.closed:
		return Frame{}, errors.New("use of closed connection")
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// drop simulates the server going away.
func (t *fakeTransport) drop() { _ = t.Close() }

func (t *fakeTransport) push(f Frame) { t.in <- f }

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// scriptedDialer hands out transports in order; a nil entry fails the dial.
type scriptedDialer struct {
	mu       sync.Mutex
	script   []*fakeTransport
	fallback *fakeTransport
	dials    int
}

func (d *scriptedDialer) Dial(context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.dials
	d.dials++
	if n < len(d.script) {
		if d.script[n] == nil {
			return nil, errDialRefused
		}
		return d.script[n], nil
	}
	if d.fallback != nil {
		return d.fallback, nil
	}
	return nil, errDialRefused
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// stubFetcher returns entries per channel, optionally waiting for release.
type stubFetcher struct {
	entries map[string][]Entry
	err     error
	release chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, channel string) ([]Entry, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[channel], nil
}

type recorder struct {
	mu      sync.Mutex
	updates []Entry
	states  chan State
}

func newRecorder() *recorder {
	return &recorder{states: make(chan State, 256)}
}

func (r *recorder) onUpdate(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, e)
}

func (r *recorder) onState(s State) { r.states <- s }

func (r *recorder) seen() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.updates...)
}

func (r *recorder) waitFor(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("never reached %s", want)
		}
	}
}

func newTestController(d Dialer, f Fetcher, rec *recorder, cfg Config) *Controller {
	cfg.OnUpdate = rec.onUpdate
	cfg.OnStateChange = rec.onState
	return NewController(d, f, cfg, logger.NewNopLogger())
}

func serviceFrame(kind domain.EventKind, id string, status domain.ServiceStatus, ms int) Frame {
	payload, _ := json.Marshal(domain.Service{ID: id, Status: status})
	return Frame{Type: string(kind), Channel: domain.ChannelServiceUpdates, Payload: payload, Timestamp: at(ms)}
}

func decodeStatus(t *testing.T, e Entry) domain.ServiceStatus {
	t.Helper()
	var svc domain.Service
	require.NoError(t, json.Unmarshal(e.Data, &svc))
	return svc.Status
}

func TestController_SnapshotBeforeLiveEvents(t *testing.T) {
	tr := newFakeTransport()
	fetcher := &stubFetcher{
		release: make(chan struct{}),
		entries: map[string][]Entry{domain.ChannelServiceUpdates: {
			{ID: "svc-1", UpdatedAt: at(10), Data: json.RawMessage(`{"id":"svc-1","status":"operational"}`)},
			{ID: "svc-2", UpdatedAt: at(10), Data: json.RawMessage(`{"id":"svc-2","status":"operational"}`)},
		}},
	}
	rec := newRecorder()
	c := newTestController(&scriptedDialer{script: []*fakeTransport{tr}}, fetcher, rec, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec.waitFor(t, StateJoined)

	// arrives while the snapshot is in flight
	tr.push(serviceFrame(domain.ServiceUpdated, "svc-1", domain.StatusMajorOutage, 20))
	tr.push(serviceFrame(domain.ServiceUpdated, "svc-2", domain.StatusDegradedPerformance, 5))
	assert.Empty(t, c.Snapshot().List("service"), "nothing is visible before the snapshot")
	assert.Equal(t, StateJoined, c.State())

	close(fetcher.release)
	rec.waitFor(t, StateLive)

	require.Eventually(t, func() bool { return len(rec.seen()) == 3 }, 2*time.Second, 5*time.Millisecond)
	seen := rec.seen()
	assert.Equal(t, "svc-1", seen[0].ID)
	assert.Equal(t, "svc-2", seen[1].ID)
	assert.Equal(t, "svc-1", seen[2].ID)
	assert.True(t, at(20).Equal(seen[2].UpdatedAt))

	e1, _ := c.Snapshot().Get("service", "svc-1")
	assert.Equal(t, domain.StatusMajorOutage, decodeStatus(t, e1))
	e2, _ := c.Snapshot().Get("service", "svc-2")
	assert.Equal(t, domain.StatusOperational, decodeStatus(t, e2), "stale buffered event does not regress the snapshot")

	cancel()
	require.NoError(t, <-done)
}

func TestController_DuplicateEventsApplyOnce(t *testing.T) {
	tr := newFakeTransport()
	rec := newRecorder()
	c := newTestController(&scriptedDialer{script: []*fakeTransport{tr}}, &stubFetcher{}, rec, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	rec.waitFor(t, StateLive)

	ev := serviceFrame(domain.ServiceCreated, "svc-1", domain.StatusOperational, 10)
	tr.push(ev)
	tr.push(ev)
	tr.push(serviceFrame(domain.ServiceUpdated, "svc-1", domain.StatusPartialOutage, 9))
	tr.push(Frame{Type: "pong"})
	tr.push(serviceFrame(domain.ServiceDeleted, "svc-1", "", 30))
	tr.push(serviceFrame(domain.ServiceUpdated, "svc-1", domain.StatusMajorOutage, 25))

	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 2*time.Second, 5*time.Millisecond)
	// trailing frames must drain before the final assertions
	tr.push(serviceFrame(domain.ServiceCreated, "marker", domain.StatusOperational, 40))
	require.Eventually(t, func() bool { return len(rec.seen()) == 3 }, 2*time.Second, 5*time.Millisecond)

	seen := rec.seen()
	assert.False(t, seen[0].Deleted)
	assert.True(t, seen[1].Deleted)
	assert.Equal(t, "marker", seen[2].ID)
	assert.Equal(t, []Entry{seen[2]}, c.Snapshot().List("service"))

	cancel()
	require.NoError(t, <-done)
	assert.True(t, tr.isClosed())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestController_BackoffGrowsAndCaps(t *testing.T) {
	rec := newRecorder()
	c := newTestController(&scriptedDialer{}, &stubFetcher{}, rec, Config{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,
		MaxAttempts:    5,
	})
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrMaxAttempts)
	assert.ErrorContains(t, err, errDialRefused.Error())
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond,
	}, delays)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestController_BackoffResetsAfterJoin(t *testing.T) {
	good := newFakeTransport()
	dialer := &scriptedDialer{script: []*fakeTransport{nil, nil, good}}
	rec := newRecorder()
	c := newTestController(dialer, &stubFetcher{}, rec, Config{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		if len(delays) == 4 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec.waitFor(t, StateLive)
	good.drop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
	}, delays)
	assert.Equal(t, 4, dialer.count())
}

func TestController_ReconnectRefetchesSnapshot(t *testing.T) {
	first, second := newFakeTransport(), newFakeTransport()
	fetcher := &stubFetcher{entries: map[string][]Entry{domain.ChannelServiceUpdates: {
		{ID: "svc-1", UpdatedAt: at(10), Data: json.RawMessage(`{"id":"svc-1"}`)},
	}}}
	rec := newRecorder()
	c := newTestController(&scriptedDialer{script: []*fakeTransport{first, second}}, fetcher, rec, Config{
		InitialBackoff: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec.waitFor(t, StateLive)
	first.push(serviceFrame(domain.ServiceCreated, "svc-2", domain.StatusOperational, 11))
	require.Eventually(t, func() bool { return len(c.Snapshot().List("service")) == 2 }, 2*time.Second, 5*time.Millisecond)

	// svc-2 was deleted while the client was away
	first.drop()
	rec.waitFor(t, StateDisconnected)
	rec.waitFor(t, StateLive)

	live := c.Snapshot().List("service")
	require.Len(t, live, 1)
	assert.Equal(t, "svc-1", live[0].ID)

	second.mu.Lock()
	assert.Equal(t, []Command{{Action: "join", Channel: domain.ChannelServiceUpdates}}, second.sent)
	second.mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}

func TestController_SessionFailures(t *testing.T) {
	tests := []struct {
		name      string
		transport func() *fakeTransport
		fetcher   *stubFetcher
		cfg       Config
		contains  string
	}{
		{
			name: "join rejected",
			transport: func() *fakeTransport {
				tr := newFakeTransport()
				tr.rejectOn = "secrets"
				return tr
			},
			fetcher:  &stubFetcher{},
			cfg:      Config{Channels: []string{"secrets"}},
			contains: "rejected",
		},
		{
			name: "join never acknowledged",
			transport: func() *fakeTransport {
				tr := newFakeTransport()
				tr.silent = true
				return tr
			},
			fetcher:  &stubFetcher{},
			cfg:      Config{JoinTimeout: 20 * time.Millisecond},
			contains: "timed out",
		},
		{
			name:      "snapshot fails",
			transport: newFakeTransport,
			fetcher:   &stubFetcher{err: errors.New("503 Service Unavailable")},
			cfg:       Config{},
			contains:  "snapshot serviceUpdates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := tt.transport()
			rec := newRecorder()
			tt.cfg.MaxAttempts = 1
			c := newTestController(&scriptedDialer{script: []*fakeTransport{tr}}, tt.fetcher, rec, tt.cfg)

			err := c.Run(context.Background())
			require.ErrorIs(t, err, ErrMaxAttempts)
			assert.ErrorContains(t, err, tt.contains)
			assert.True(t, tr.isClosed())
			assert.Empty(t, rec.seen())
		})
	}
}

func TestController_DropAfterLiveDoesNotCountAsAttempt(t *testing.T) {
	healthy := newFakeTransport()
	dialer := &scriptedDialer{script: []*fakeTransport{healthy}}
	rec := newRecorder()
	c := newTestController(dialer, &stubFetcher{}, rec, Config{MaxAttempts: 1})
	c.sleep = func(context.Context, time.Duration) error { return nil }

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	rec.waitFor(t, StateLive)
	healthy.drop()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrMaxAttempts)
		assert.ErrorContains(t, err, errDialRefused.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 2, dialer.count(), "the drop is followed by a fresh attempt")
}

func TestController_CancelWhileDialing(t *testing.T) {
	rec := newRecorder()
	c := newTestController(&scriptedDialer{}, &stubFetcher{}, rec, Config{InitialBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec.waitFor(t, StateConnecting)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, StateDisconnected, c.State())
}
