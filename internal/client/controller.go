// Package client keeps a local snapshot of hub state current across
// connection drops. A Controller joins the configured channels, fetches a
// full snapshot once every join is acknowledged, and then applies live
// events. Events received before the snapshot is applied are buffered and
// applied after it, so the local copy never shows pre-snapshot state.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/logger"
)

// ErrMaxAttempts is returned by Run when MaxAttempts consecutive
// connection attempts failed before going live.
var ErrMaxAttempts = errors.New("reconnect attempts exhausted")

type Config struct {
	// Channels to join. Defaults to serviceUpdates.
	Channels []string
	// InitialBackoff is the first reconnect delay; each failure doubles it
	// up to MaxBackoff. A successful join resets it.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts bounds consecutive attempts that never went live. A drop
	// after the snapshot was applied starts the count over. Zero retries
	// forever.
	MaxAttempts int
	// JoinTimeout bounds the wait for join acknowledgements.
	JoinTimeout time.Duration

	OnStateChange func(State)
	OnUpdate      func(Entry)
}

func (c *Config) setDefaults() {
	if len(c.Channels) == 0 {
		c.Channels = []string{domain.ChannelServiceUpdates}
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
}

type Controller struct {
	cfg      Config
	dialer   Dialer
	fetcher  Fetcher
	snapshot *Snapshot
	logger   logger.Logger
	backoff  *backoff.ExponentialBackOff

	mu    sync.RWMutex
	state State

	// sleep waits d or until ctx ends.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewController(dialer Dialer, fetcher Fetcher, cfg Config, log logger.Logger) *Controller {
	cfg.setDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Controller{
		cfg:      cfg,
		dialer:   dialer,
		fetcher:  fetcher,
		snapshot: NewSnapshot(),
		logger:   log.WithField("component", "client"),
		backoff:  b,
		state:    StateDisconnected,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the local state. It is safe for concurrent reads.
func (c *Controller) Snapshot() *Snapshot {
	return c.snapshot
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.logger.Debugf("State %s", s)
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// Run connects and keeps the snapshot current until ctx is cancelled, in
// which case it returns nil, or until MaxAttempts is exceeded.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		reached, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if reached != StateConnecting {
			c.backoff.Reset()
		}
		if reached == StateLive {
			failures = 0
		} else {
			failures++
		}

		if c.cfg.MaxAttempts > 0 && failures >= c.cfg.MaxAttempts {
			c.logger.Errorf("Giving up after %d attempts: %v", failures, err)
			return fmt.Errorf("%w: %v", ErrMaxAttempts, err)
		}

		delay := c.backoff.NextBackOff()
		c.logger.Warnf("Connection lost (%v), retrying in %s", err, delay)
		c.setState(StateDisconnected)
		if err := c.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

type readResult struct {
	frame Frame
	err   error
}

// session runs one connection from dial to failure and reports the furthest
// state it reached.
func (c *Controller) session(ctx context.Context) (reached State, err error) {
	c.setState(StateConnecting)

	t, err := c.dialer.Dial(ctx)
	if err != nil {
		return StateConnecting, err
	}

	sctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = t.Close()
		wg.Wait()
	}()

	frames := make(chan readResult, 64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			f, err := t.Read()
			select {
			case frames <- readResult{frame: f, err: err}:
			case <-sctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for _, ch := range c.cfg.Channels {
		if err := t.Send(sctx, Command{Action: "join", Channel: ch}); err != nil {
			return StateConnecting, fmt.Errorf("join %s: %w", ch, err)
		}
	}

	var buffered []Frame

	// connecting -> joined
	pending := make(map[string]struct{}, len(c.cfg.Channels))
	for _, ch := range c.cfg.Channels {
		pending[ch] = struct{}{}
	}
	joinTimer := time.NewTimer(c.cfg.JoinTimeout)
	defer joinTimer.Stop()
	for len(pending) > 0 {
		select {
		case r := <-frames:
			if r.err != nil {
				return StateConnecting, r.err
			}
			switch r.frame.Type {
			case "joined":
				delete(pending, r.frame.Channel)
			case "error":
				return StateConnecting, fmt.Errorf("server rejected join: %s", r.frame.Payload)
			default:
				buffered = append(buffered, r.frame)
			}
		case <-joinTimer.C:
			return StateConnecting, errors.New("timed out waiting for join acknowledgement")
		case <-sctx.Done():
			return StateConnecting, sctx.Err()
		}
	}
	c.setState(StateJoined)

	// joined -> live: fetch while buffering
	type fetchResult struct {
		channel string
		entries []Entry
		err     error
	}
	fetched := make(chan fetchResult, len(c.cfg.Channels))
	for _, ch := range c.cfg.Channels {
		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			entries, err := c.fetcher.Fetch(sctx, ch)
			fetched <- fetchResult{channel: ch, entries: entries, err: err}
		}(ch)
	}

	listings := make(map[string][]Entry, len(c.cfg.Channels))
	for len(listings) < len(c.cfg.Channels) {
		select {
		case r := <-frames:
			if r.err != nil {
				return StateJoined, r.err
			}
			buffered = append(buffered, r.frame)
		case res := <-fetched:
			if res.err != nil {
				return StateJoined, fmt.Errorf("snapshot %s: %w", res.channel, res.err)
			}
			listings[res.channel] = res.entries
		case <-sctx.Done():
			return StateJoined, sctx.Err()
		}
	}

	for _, ch := range c.cfg.Channels {
		for _, e := range c.snapshot.Replace(entityOf(ch), listings[ch]) {
			c.notify(e)
		}
	}
	for _, f := range buffered {
		c.handle(f)
	}
	c.setState(StateLive)

	for {
		select {
		case r := <-frames:
			if r.err != nil {
				return StateLive, r.err
			}
			c.handle(r.frame)
		case <-sctx.Done():
			return StateLive, sctx.Err()
		}
	}
}

func (c *Controller) handle(f Frame) {
	e, isEvent, err := entryFromEvent(f)
	if !isEvent {
		return
	}
	if err != nil {
		c.logger.Warnf("Ignoring %s event: %v", f.Type, err)
		return
	}
	if c.snapshot.Apply(e) {
		c.notify(e)
	}
}

func (c *Controller) notify(e Entry) {
	if c.cfg.OnUpdate != nil {
		c.cfg.OnUpdate(e)
	}
}
