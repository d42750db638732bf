// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parley-chat/parley/stanza"
)

// Predicate reports whether an inbound stanza answers a pending
// request. Predicates run under the client's lock and must be pure
// structural checks.
type Predicate func(*stanza.Element) bool

type opResult struct {
	reply *stanza.Element
	err   error
}

// pendingOp is one registered request awaiting its reply. resolve is
// first-wins: whichever of reply delivery, timeout, cancellation, or
// connection failure gets there first determines the outcome.
type pendingOp struct {
	match      Predicate
	generation int
	once       sync.Once
	result     chan opResult
}

func (op *pendingOp) resolve(reply *stanza.Element, err error) {
	op.once.Do(func() {
		op.result <- opResult{reply: reply, err: err}
	})
}

// OnStanza installs the handler for inbound stanzas matching no
// pending request: live messages, presence updates from other
// occupants, typing notifications. The handler runs on the read loop
// goroutine and must not block.
func (c *Client) OnStanza(f func(*stanza.Element)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStanza = f
}

// Request sends el and waits for the first inbound stanza matched by
// match. A zero timeout selects the configured request timeout. The
// request resolves exactly once: with the reply, with
// ErrRequestTimeout, with the context error, or with ErrConnection if
// the link drops while waiting.
func (c *Client) Request(ctx context.Context, el *stanza.Element, match Predicate, timeout time.Duration) (*stanza.Element, error) {
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}
	if err := c.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, connectionError(nil)
	}
	op := &pendingOp{
		match:      match,
		generation: c.generation,
		result:     make(chan opResult, 1),
	}
	c.pending = append(c.pending, op)
	c.mu.Unlock()

	if err := conn.Send(ctx, el); err != nil {
		c.removePending(op)
		return nil, fmt.Errorf("session: sending <%s>: %w", el.Name, connectionError(err))
	}

	select {
	case res := <-op.result:
		return res.reply, res.err
	case <-c.clock.After(timeout):
		c.removePending(op)
		op.resolve(nil, ErrRequestTimeout)
	case <-ctx.Done():
		c.removePending(op)
		op.resolve(nil, ctx.Err())
	}
	// A reply may have raced the timeout or cancellation; the op's
	// once decided the winner.
	res := <-op.result
	return res.reply, res.err
}

// send transmits el without awaiting any reply.
func (c *Client) send(ctx context.Context, el *stanza.Element) error {
	if err := c.EnsureConnected(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return connectionError(nil)
	}
	if err := conn.Send(ctx, el); err != nil {
		return fmt.Errorf("session: sending <%s>: %w", el.Name, connectionError(err))
	}
	return nil
}

// dispatch routes one inbound stanza: history collectors first, then
// the pending requests in registration order, then the unsolicited
// handler.
func (c *Client) dispatch(el *stanza.Element) {
	if c.collectHistory(el) {
		return
	}

	c.mu.Lock()
	for i, op := range c.pending {
		if op.match(el) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			c.mu.Unlock()
			op.resolve(el, nil)
			return
		}
	}
	handler := c.onStanza
	c.mu.Unlock()

	if handler != nil {
		handler(el)
	}
}

func (c *Client) removePending(op *pendingOp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, candidate := range c.pending {
		if candidate == op {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// takePendingLocked removes and returns the requests registered
// against the given connection generation; -1 takes all of them.
func (c *Client) takePendingLocked(generation int) []*pendingOp {
	var taken, kept []*pendingOp
	for _, op := range c.pending {
		if generation < 0 || op.generation == generation {
			taken = append(taken, op)
		} else {
			kept = append(kept, op)
		}
	}
	c.pending = kept
	return taken
}
