// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/stanza"
)

// NSSASL is the namespace of the authentication exchange performed
// immediately after the WebSocket opens.
const NSSASL = "urn:ietf:params:xml:ns:xmpp-sasl"

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 25 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultReceiveBuffer    = 32
)

// WebSocketDialer dials the chat service over a persistent WebSocket.
// Each stanza travels as one XML text frame.
type WebSocketDialer struct {
	// URL is the WebSocket endpoint
	// (e.g., "wss://chat.example.com:5443/ws").
	URL string

	// HandshakeTimeout bounds the connect plus authentication
	// exchange when the caller's context carries no deadline.
	// Zero means 10 seconds.
	HandshakeTimeout time.Duration

	// PingInterval is the keepalive ping period. Zero means 25
	// seconds; negative disables pings and the read deadline.
	PingInterval time.Duration

	// Dialer overrides the underlying websocket.Dialer. Nil uses a
	// default with HandshakeTimeout applied.
	Dialer *websocket.Dialer

	// Logger is used for structured logging. Nil means slog.Default().
	Logger *slog.Logger
}

// Dial connects, authenticates, and returns a live Conn.
func (d *WebSocketDialer) Dial(ctx context.Context, credentials Credentials) (Conn, error) {
	if d.URL == "" {
		return nil, fmt.Errorf("transport: WebSocketDialer.URL is required")
	}
	if credentials.JID.IsZero() || credentials.Password == nil {
		return nil, fmt.Errorf("transport: credentials are required")
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()
	}

	wsDialer := d.Dialer
	if wsDialer == nil {
		wsDialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}

	socket, _, err := wsDialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", d.URL, err)
	}

	if err := authenticate(ctx, socket, credentials); err != nil {
		socket.Close()
		return nil, err
	}

	pingInterval := d.PingInterval
	if pingInterval == 0 {
		pingInterval = defaultPingInterval
	}

	conn := &wsConn{
		socket:       socket,
		logger:       logger,
		inbound:      make(chan *stanza.Element, defaultReceiveBuffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
	}
	go conn.readLoop()
	if pingInterval > 0 {
		go conn.pingLoop()
	}
	return conn, nil
}

// authenticate performs the SASL PLAIN exchange on a freshly opened
// socket. The password is copied onto the heap only for the duration
// of the exchange, at the serialization boundary.
func authenticate(ctx context.Context, socket *websocket.Conn, credentials Credentials) error {
	password := credentials.Password.Bytes()
	identity := credentials.JID.Localpart()

	plain := make([]byte, 0, 2+len(identity)+len(password))
	plain = append(plain, 0)
	plain = append(plain, identity...)
	plain = append(plain, 0)
	plain = append(plain, password...)

	auth := stanza.New("auth", "xmlns", NSSASL, "mechanism", "PLAIN").
		SetText(base64.StdEncoding.EncodeToString(plain))
	encoded, err := stanza.Marshal(auth)
	if err != nil {
		return fmt.Errorf("transport: encoding auth: %w", err)
	}

	deadline, _ := ctx.Deadline()
	socket.SetWriteDeadline(deadline)
	if err := socket.WriteMessage(websocket.TextMessage, encoded); err != nil {
		return fmt.Errorf("transport: sending auth: %w", err)
	}

	socket.SetReadDeadline(deadline)
	_, reply, err := socket.ReadMessage()
	if err != nil {
		return fmt.Errorf("transport: awaiting auth reply: %w", err)
	}
	parsed, err := stanza.Unmarshal(reply)
	if err != nil {
		return fmt.Errorf("transport: parsing auth reply: %w", err)
	}

	switch parsed.Name {
	case "success":
		socket.SetReadDeadline(time.Time{})
		return nil
	case "failure":
		condition := "not-authorized"
		if len(parsed.Children) > 0 {
			condition = parsed.Children[0].Name
		}
		return fmt.Errorf("transport: authentication failed: %s", condition)
	default:
		return fmt.Errorf("transport: unexpected auth reply <%s>", parsed.Name)
	}
}

// wsConn is one live WebSocket stanza stream.
type wsConn struct {
	socket *websocket.Conn
	logger *slog.Logger

	// writeMu serializes frame writes — the underlying WebSocket
	// connection does not support concurrent writers.
	writeMu sync.Mutex

	inbound chan *stanza.Element
	done    chan struct{}
	once    sync.Once

	errMu sync.Mutex
	err   error

	pingInterval time.Duration
}

func (c *wsConn) Send(ctx context.Context, el *stanza.Element) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	encoded, err := stanza.Marshal(el)
	if err != nil {
		return fmt.Errorf("transport: encoding <%s>: %w", el.Name, err)
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.socket.SetWriteDeadline(deadline)
	if err := c.socket.WriteMessage(websocket.TextMessage, encoded); err != nil {
		c.terminate(err)
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *wsConn) Receive() <-chan *stanza.Element { return c.inbound }
func (c *wsConn) Done() <-chan struct{}           { return c.done }

func (c *wsConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *wsConn) Close() error {
	c.terminate(nil)
	return nil
}

// terminate records the cause, signals Done, and closes the socket.
// The first caller wins: a local Close leaves Err nil even if the read
// loop subsequently fails on the closed socket.
func (c *wsConn) terminate(cause error) {
	c.once.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()
		close(c.done)
		c.socket.Close()
	})
}

// readLoop drains the socket into the inbound channel until the
// connection fails or is closed. It is the sole closer of inbound.
func (c *wsConn) readLoop() {
	defer close(c.inbound)

	if c.pingInterval > 0 {
		c.socket.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
		c.socket.SetPongHandler(func(string) error {
			return c.socket.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
		})
	}

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			c.terminate(err)
			return
		}
		parsed, err := stanza.Unmarshal(data)
		if err != nil {
			// A malformed frame is a peer bug, not a dead
			// connection. Log and keep reading.
			c.logger.Warn("dropping malformed inbound frame", "error", err)
			continue
		}
		select {
		case c.inbound <- parsed:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends keepalive pings until the connection terminates.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.terminate(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
