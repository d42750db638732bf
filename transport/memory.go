// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/parley-chat/parley/stanza"
)

// memoryBuffer bounds the in-process channels. Tests that overflow it
// are broken tests; Deliver panics rather than blocking.
const memoryBuffer = 256

// MemoryDialer is an in-process Dialer for tests. Every successful
// Dial produces a connection whose far side is a scriptable Peer.
type MemoryDialer struct {
	// OnDial, when set, is invoked with the Peer of each successful
	// dial before Dial returns. Tests use it to script the server
	// side of a connection as soon as it exists.
	OnDial func(*Peer)

	mu       sync.Mutex
	dials    int
	failures int
	peers    []*Peer
}

// FailNext makes the next n Dial calls fail.
func (d *MemoryDialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

// DialCount returns the number of Dial calls made, including failures.
func (d *MemoryDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Peers returns every Peer created so far, in dial order.
func (d *MemoryDialer) Peers() []*Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Peer(nil), d.peers...)
}

// LastPeer returns the most recently created Peer, or nil.
func (d *MemoryDialer) LastPeer() *Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.peers) == 0 {
		return nil
	}
	return d.peers[len(d.peers)-1]
}

// Dial implements Dialer.
func (d *MemoryDialer) Dial(ctx context.Context, credentials Credentials) (Conn, error) {
	d.mu.Lock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, errors.New("transport: dial refused")
	}
	conn := &memoryConn{
		inbound: make(chan *stanza.Element, memoryBuffer),
		done:    make(chan struct{}),
	}
	peer := &Peer{conn: conn, sent: make(chan *stanza.Element, memoryBuffer)}
	conn.peer = peer
	d.peers = append(d.peers, peer)
	onDial := d.OnDial
	d.mu.Unlock()

	if onDial != nil {
		onDial(peer)
	}
	return conn, nil
}

// Peer is the far side of a memory connection: what a test uses to
// play the server.
type Peer struct {
	conn *memoryConn
	sent chan *stanza.Element
}

// Sent returns the stream of stanzas the client side has sent.
func (p *Peer) Sent() <-chan *stanza.Element { return p.sent }

// Deliver injects a stanza into the client's inbound stream. Stanzas
// delivered after a disconnect are silently dropped, matching frames
// in flight on a dead socket.
func (p *Peer) Deliver(el *stanza.Element) {
	p.conn.mu.Lock()
	defer p.conn.mu.Unlock()
	if p.conn.closed {
		return
	}
	select {
	case p.conn.inbound <- el:
	default:
		panic("transport: memory connection inbound buffer overflow")
	}
}

// Disconnect drops the connection from the server side. The client
// observes a closed Receive channel and the given error.
func (p *Peer) Disconnect(cause error) {
	p.conn.terminate(cause)
}

// Connected reports whether the connection is still up.
func (p *Peer) Connected() bool {
	p.conn.mu.Lock()
	defer p.conn.mu.Unlock()
	return !p.conn.closed
}

type memoryConn struct {
	peer *Peer

	mu      sync.Mutex
	closed  bool
	err     error
	inbound chan *stanza.Element
	done    chan struct{}
}

func (c *memoryConn) Send(ctx context.Context, el *stanza.Element) error {
	select {
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case c.peer.sent <- el:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *memoryConn) Receive() <-chan *stanza.Element { return c.inbound }
func (c *memoryConn) Done() <-chan struct{}           { return c.done }

func (c *memoryConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *memoryConn) Close() error {
	c.terminate(nil)
	return nil
}

func (c *memoryConn) terminate(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = cause
	close(c.done)
	close(c.inbound)
}
