// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/parley-chat/parley/stanza"
)

func TestMemoryExchange(t *testing.T) {
	dialer := &MemoryDialer{}
	conn, err := dialer.Dial(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	peer := dialer.LastPeer()

	if err := conn.Send(context.Background(), stanza.New("presence", "id", "p1")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sent := <-peer.Sent()
	if sent.Attr("id") != "p1" {
		t.Errorf("peer saw %s", sent)
	}

	peer.Deliver(stanza.New("message", "id", "m1"))
	received := <-conn.Receive()
	if received.Attr("id") != "m1" {
		t.Errorf("client saw %s", received)
	}
}

func TestMemoryFailNext(t *testing.T) {
	dialer := &MemoryDialer{}
	dialer.FailNext(2)

	for attempt := 0; attempt < 2; attempt++ {
		if _, err := dialer.Dial(context.Background(), Credentials{}); err == nil {
			t.Fatalf("dial %d succeeded during failure window", attempt)
		}
	}
	conn, err := dialer.Dial(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("dial after failure window: %v", err)
	}
	conn.Close()
	if dialer.DialCount() != 3 {
		t.Errorf("DialCount = %d, want 3", dialer.DialCount())
	}
}

func TestMemoryDisconnect(t *testing.T) {
	dialer := &MemoryDialer{}
	conn, err := dialer.Dial(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	peer := dialer.LastPeer()

	cause := errors.New("link lost")
	peer.Disconnect(cause)

	<-conn.Done()
	if _, open := <-conn.Receive(); open {
		t.Error("Receive channel still open after disconnect")
	}
	if !errors.Is(conn.Err(), cause) {
		t.Errorf("Err = %v, want %v", conn.Err(), cause)
	}
	if peer.Connected() {
		t.Error("peer reports connected after disconnect")
	}

	// Late deliveries are dropped, not panics.
	peer.Deliver(stanza.New("message"))

	if err := conn.Send(context.Background(), stanza.New("presence")); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Send after disconnect = %v, want ErrConnClosed", err)
	}
}

func TestMemoryOnDial(t *testing.T) {
	dialer := &MemoryDialer{}
	var scripted *Peer
	dialer.OnDial = func(peer *Peer) { scripted = peer }

	conn, err := dialer.Dial(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if scripted != dialer.LastPeer() {
		t.Error("OnDial peer differs from LastPeer")
	}
}
