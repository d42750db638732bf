// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/secret"
	"github.com/parley-chat/parley/stanza"
)

var upgrader = websocket.Upgrader{}

// startServer runs a WebSocket server that performs the auth handshake
// and then hands the socket to handle.
func startServer(t *testing.T, acceptAuth bool, handle func(*websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		socket, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer socket.Close()

		_, data, err := socket.ReadMessage()
		if err != nil {
			return
		}
		auth, err := stanza.Unmarshal(data)
		if err != nil || !auth.Is("auth") {
			t.Errorf("first frame not auth: %s", data)
			return
		}
		if auth.Attr("mechanism") != "PLAIN" {
			t.Errorf("mechanism = %q", auth.Attr("mechanism"))
		}
		decoded, err := base64.StdEncoding.DecodeString(auth.Text)
		if err != nil {
			t.Errorf("auth payload not base64: %v", err)
		}
		parts := strings.Split(string(decoded), "\x00")
		if len(parts) != 3 || parts[1] != "alice" || parts[2] != "hunter2" {
			t.Errorf("unexpected SASL payload parts: %q", parts)
		}

		if !acceptAuth {
			reply := stanza.New("failure", "xmlns", NSSASL).AddChild(stanza.New("not-authorized"))
			socket.WriteMessage(websocket.TextMessage, []byte(reply.String()))
			return
		}
		reply := stanza.New("success", "xmlns", NSSASL)
		if err := socket.WriteMessage(websocket.TextMessage, []byte(reply.String())); err != nil {
			return
		}
		if handle != nil {
			handle(socket)
		} else {
			// Hold the socket open until the client hangs up.
			for {
				if _, _, err := socket.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testCredentials(t *testing.T) Credentials {
	t.Helper()
	password, err := secret.NewFromBytes([]byte("hunter2"))
	if err != nil {
		t.Fatalf("creating password buffer: %v", err)
	}
	t.Cleanup(func() { password.Close() })
	return Credentials{JID: ref.MustParseJID("alice@example.com"), Password: password}
}

func TestWebSocketDialAndExchange(t *testing.T) {
	url := startServer(t, true, func(socket *websocket.Conn) {
		// Echo each message back with a result marker.
		for {
			_, data, err := socket.ReadMessage()
			if err != nil {
				return
			}
			inbound, err := stanza.Unmarshal(data)
			if err != nil {
				return
			}
			reply := stanza.New("iq", "type", "result", "id", inbound.Attr("id"))
			if err := socket.WriteMessage(websocket.TextMessage, []byte(reply.String())); err != nil {
				return
			}
		}
	})

	dialer := &WebSocketDialer{URL: url, PingInterval: -1}
	conn, err := dialer.Dial(context.Background(), testCredentials(t))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	request := stanza.New("iq", "type", "get", "id", "q1")
	if err := conn.Send(context.Background(), request); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case reply := <-conn.Receive():
		if reply.Attr("id") != "q1" || reply.Attr("type") != "result" {
			t.Errorf("unexpected reply: %s", reply)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply received")
	}
}

func TestWebSocketAuthFailure(t *testing.T) {
	url := startServer(t, false, nil)
	dialer := &WebSocketDialer{URL: url, PingInterval: -1}

	_, err := dialer.Dial(context.Background(), testCredentials(t))
	if err == nil {
		t.Fatal("Dial succeeded with rejected credentials")
	}
	if !strings.Contains(err.Error(), "not-authorized") {
		t.Errorf("error does not name the failure condition: %v", err)
	}
}

func TestWebSocketDisconnectDetection(t *testing.T) {
	url := startServer(t, true, func(socket *websocket.Conn) {
		// Drop the connection immediately after auth.
		socket.Close()
	})

	dialer := &WebSocketDialer{URL: url, PingInterval: -1}
	conn, err := dialer.Dial(context.Background(), testCredentials(t))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not signalled after server dropped the socket")
	}
	if conn.Err() == nil {
		t.Error("Err is nil after a remote drop")
	}

	if err := conn.Send(context.Background(), stanza.New("presence")); err == nil {
		t.Error("Send succeeded on a dead connection")
	}
}

func TestWebSocketLocalCloseLeavesErrNil(t *testing.T) {
	url := startServer(t, true, nil)
	dialer := &WebSocketDialer{URL: url, PingInterval: -1}
	conn, err := dialer.Dial(context.Background(), testCredentials(t))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	<-conn.Done()
	if conn.Err() != nil {
		t.Errorf("Err = %v after local close, want nil", conn.Err())
	}
}
