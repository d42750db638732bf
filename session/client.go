// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-chat/parley/lib/clock"
	"github.com/parley-chat/parley/stanza"
	"github.com/parley-chat/parley/transport"
)

// Config tunes a Client. The zero value of every field selects the
// default documented on it.
type Config struct {
	// ReconnectMaxAttempts is the advisory attempt ceiling exposed to
	// retry loops via MaxReconnectAttempts. Reconnect itself never
	// refuses an attempt. Default 5.
	ReconnectMaxAttempts int

	// ReconnectBaseDelay is the delay after the first failed attempt;
	// each further failure doubles it. Default 2s.
	ReconnectBaseDelay time.Duration

	// RequestTimeout bounds each correlated request when the caller
	// passes no explicit timeout. Default 10s.
	RequestTimeout time.Duration

	// ConnectTimeout bounds how long EnsureConnected waits for a
	// connect in progress to settle. Default 10s.
	ConnectTimeout time.Duration

	// ConferenceDomain hosts the rooms. Default "conference." plus the
	// account domain.
	ConferenceDomain string

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) applyDefaults(accountDomain string) {
	if c.ReconnectMaxAttempts == 0 {
		c.ReconnectMaxAttempts = 5
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 2 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ConferenceDomain == "" {
		c.ConferenceDomain = "conference." + accountDomain
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client multiplexes chat operations over a single managed connection.
// All methods are safe for concurrent use.
type Client struct {
	dialer      transport.Dialer
	credentials transport.Credentials
	config      Config
	clock       clock.Clock
	logger      *slog.Logger

	mu         sync.Mutex
	status     Status
	conn       transport.Conn
	generation int
	attempts   int
	closed     bool
	waiters    []chan struct{}
	listeners  []func(Status)
	pending    []*pendingOp
	collectors map[string]*historyCollector
	onStanza   func(*stanza.Element)
}

// New builds an offline Client. No connection is made until the first
// EnsureConnected or Reconnect.
func New(dialer transport.Dialer, credentials transport.Credentials, config Config) *Client {
	config.applyDefaults(credentials.JID.Domain())
	return &Client{
		dialer:      dialer,
		credentials: credentials,
		config:      config,
		clock:       config.Clock,
		logger:      config.Logger.With("component", "session", "account", credentials.JID.Bare().String()),
		status:      StatusOffline,
		collectors:  make(map[string]*historyCollector),
	}
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Attempts returns the count of consecutive failed reconnects. Reset
// to zero by a successful connect.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// MaxReconnectAttempts returns the configured attempt ceiling for
// retry loops built on Reconnect and ReconnectDelay.
func (c *Client) MaxReconnectAttempts() int { return c.config.ReconnectMaxAttempts }

// ReconnectDelay returns the backoff before the next reconnect
// attempt: the base delay doubled for each consecutive failure beyond
// the first.
func (c *Client) ReconnectDelay() time.Duration {
	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	if attempts < 1 {
		attempts = 1
	}
	shift := uint(attempts - 1)
	if shift > 20 {
		shift = 20
	}
	return c.config.ReconnectBaseDelay << shift
}

// OnStatusChange registers f to be called on every status transition.
// Callbacks run synchronously after the transition and must not block.
func (c *Client) OnStatusChange(f func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, f)
}

// setStatusLocked records the transition and returns the notification
// to run after the lock is released. Waiters are woken on every
// transition; listeners see the new status.
func (c *Client) setStatusLocked(status Status) func() {
	if c.status == status {
		return func() {}
	}
	old := c.status
	c.status = status
	waiters := c.waiters
	c.waiters = nil
	listeners := make([]func(Status), len(c.listeners))
	copy(listeners, c.listeners)
	return func() {
		c.logger.Debug("status changed", "from", old.String(), "to", status.String())
		for _, ch := range waiters {
			close(ch)
		}
		for _, f := range listeners {
			f(status)
		}
	}
}

// EnsureConnected returns once the client is online, triggering at
// most one reconnect of its own. If the connection is down and the
// triggered reconnect fails, the dial error is returned. If a connect
// is already in progress it is awaited, up to the connect timeout.
func (c *Client) EnsureConnected(ctx context.Context) error {
	var timeout <-chan time.Time
	reconnected := false
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		switch c.status {
		case StatusOnline:
			c.mu.Unlock()
			return nil

		case StatusOffline, StatusError:
			if reconnected {
				// The reconnect we triggered (or awaited) settled
				// without coming up.
				c.mu.Unlock()
				return connectionError(nil)
			}
			reconnected = true
			c.mu.Unlock()
			if err := c.Reconnect(ctx); err != nil {
				return err
			}

		case StatusConnecting:
			waiter := make(chan struct{})
			c.waiters = append(c.waiters, waiter)
			c.mu.Unlock()
			if timeout == nil {
				timeout = c.clock.After(c.config.ConnectTimeout)
			}
			select {
			case <-waiter:
				reconnected = true
			case <-timeout:
				return ErrConnectionTimeout
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Reconnect tears down any existing connection and dials a new one.
// Single-flight: if a connect is already in progress the call returns
// nil immediately without starting another. On failure the attempt
// counter is incremented and the error matches ErrConnection; on
// success it is reset.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	old := c.conn
	c.conn = nil
	notify := c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()
	notify()
	if old != nil {
		old.Close()
	}

	conn, err := c.dialer.Dial(ctx, c.credentials)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		c.attempts++
		notify := c.setStatusLocked(StatusError)
		attempts := c.attempts
		c.mu.Unlock()
		notify()
		c.logger.Warn("reconnect failed", "attempt", attempts, "error", err)
		return connectionError(err)
	}
	c.conn = conn
	c.generation++
	generation := c.generation
	c.attempts = 0
	notify = c.setStatusLocked(StatusOnline)
	c.mu.Unlock()
	notify()
	c.logger.Info("connected")
	go c.readLoop(conn, generation)
	return nil
}

// readLoop drains one connection's inbound stream. Exactly one loop
// runs per established connection; the generation check keeps a stale
// loop from touching state owned by a successor.
func (c *Client) readLoop(conn transport.Conn, generation int) {
	for el := range conn.Receive() {
		c.dispatch(el)
	}
	cause := conn.Err()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var notify func()
	if c.generation == generation && c.conn == conn {
		c.conn = nil
		notify = c.setStatusLocked(StatusOffline)
	} else {
		notify = func() {}
	}
	failed := c.takePendingLocked(generation)
	c.mu.Unlock()
	notify()

	err := connectionError(cause)
	for _, op := range failed {
		op.resolve(nil, err)
	}
	if cause != nil {
		c.logger.Warn("connection lost", "error", cause)
	} else {
		c.logger.Info("connection closed")
	}
}

// Close shuts the client down. Pending requests fail with ErrClosed;
// every later operation returns ErrClosed. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	notify := c.setStatusLocked(StatusOffline)
	failed := c.takePendingLocked(-1)
	c.mu.Unlock()
	notify()

	for _, op := range failed {
		op.resolve(nil, ErrClosed)
	}
	if conn != nil {
		conn.Close()
	}
	return nil
}
