package gamenet

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func newTestClient(t *testing.T, opt ...Option) *Client {
	t.Helper()

	opt = append([]Option{LoggerOption(&mockLogger{})}, opt...)
	client, err := NewClient(opt...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(client.Stop)
	return client
}

func nextClientEvent(t *testing.T, client *Client, want EventType) Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := client.NextEvent(ctx)
	if err != nil {
		t.Fatalf("timeout waiting for %v event", want)
	}
	if e.Type != want {
		t.Fatalf("event type = %v, want %v (err %v)", e.Type, want, e.Err)
	}
	return e
}

func serverPort(server *Server) int {
	return server.Addr().(*net.TCPAddr).Port
}

func TestClient_ConnectAndExchange(t *testing.T) {
	server := startTestServer(t)
	client := newTestClient(t)

	if err := client.Send([]byte("early")); err != ErrConnectionClosed {
		t.Errorf("Send before connect = %v, want ErrConnectionClosed", err)
	}

	client.Start("127.0.0.1", serverPort(server))
	nextClientEvent(t, client, Connected)
	connected := nextServerEvent(t, server, Connected)

	if !client.IsActive() {
		t.Error("client should be active")
	}
	if client.RemoteAddr() != server.Addr().String() {
		t.Errorf("RemoteAddr = %s, want %s", client.RemoteAddr(), server.Addr())
	}

	if err := client.Send([]byte("hello")); err != nil {
		t.Fatalf("client Send failed: %v", err)
	}
	data := nextServerEvent(t, server, DataReceived)
	if string(data.Data) != "hello" {
		t.Errorf("server received %q", data.Data)
	}
	data.Release()

	if err := server.Send(connected.ConnID, []byte("world")); err != nil {
		t.Fatalf("server Send failed: %v", err)
	}
	reply := nextClientEvent(t, client, DataReceived)
	if string(reply.Data) != "world" {
		t.Errorf("client received %q", reply.Data)
	}
	if reply.ConnID != 0 {
		t.Errorf("client event ConnID = %d, want 0", reply.ConnID)
	}
	reply.Release()
}

func TestClient_ConnectFailed(t *testing.T) {
	// Reserve a port and close it so nothing listens there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	client := newTestClient(t, DialTimeoutOption(time.Second))
	client.Start("127.0.0.1", port)

	e := nextClientEvent(t, client, ConnectFailed)
	if e.Err == nil {
		t.Error("ConnectFailed without cause")
	}

	deadline := time.Now().Add(time.Second)
	for client.State() != Idle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if client.State() != Idle {
		t.Errorf("state = %v, want idle", client.State())
	}
}

func TestClient_StartTwicePanics(t *testing.T) {
	server := startTestServer(t)
	client := newTestClient(t)
	client.Start("127.0.0.1", serverPort(server))

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	client.Start("127.0.0.1", serverPort(server))
}

func TestClient_Stop(t *testing.T) {
	server := startTestServer(t)
	client := newTestClient(t)
	client.Start("127.0.0.1", serverPort(server))
	nextClientEvent(t, client, Connected)
	nextServerEvent(t, server, Connected)

	client.Stop()

	if client.State() != Idle {
		t.Errorf("state = %v, want idle", client.State())
	}
	e := nextClientEvent(t, client, Disconnected)
	if e.Err != nil {
		t.Errorf("local Stop reported cause %v", e.Err)
	}
	if _, ok := client.TryNextEvent(); ok {
		t.Error("more than one event after Stop")
	}

	nextServerEvent(t, server, Disconnected)

	// A stopped client can connect again.
	client.Start("127.0.0.1", serverPort(server))
	nextClientEvent(t, client, Connected)
}

func TestClient_ServerDisconnects(t *testing.T) {
	server := startTestServer(t)
	client := newTestClient(t)
	client.Start("127.0.0.1", serverPort(server))
	nextClientEvent(t, client, Connected)
	connected := nextServerEvent(t, server, Connected)

	if err := server.Disconnect(connected.ConnID); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	nextClientEvent(t, client, Disconnected)

	deadline := time.Now().Add(time.Second)
	for client.State() != Idle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := client.Send([]byte("x")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send after disconnect = %v, want ErrConnectionClosed", err)
	}
}

func TestClient_StopIdle(t *testing.T) {
	client := newTestClient(t)
	client.Stop()
	if client.State() != Idle {
		t.Errorf("state = %v, want idle", client.State())
	}
}

func TestClient_StopWhileConnecting(t *testing.T) {
	server := startTestServer(t)

	for i := 0; i < 20; i++ {
		client := newTestClient(t)
		client.Start("127.0.0.1", serverPort(server))
		client.Stop()

		if client.State() != Idle {
			t.Fatalf("state after Stop = %v, want idle", client.State())
		}
		if err := client.Send([]byte("x")); !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("Send after Stop = %v, want ErrConnectionClosed", err)
		}

		// Either the connect was abandoned, or it completed and was closed.
		e, ok := client.TryNextEvent()
		if !ok {
			t.Fatal("no event after Stop")
		}
		switch e.Type {
		case ConnectFailed:
		case Connected:
			if next, ok := client.TryNextEvent(); !ok || next.Type != Disconnected {
				t.Fatalf("Connected not followed by Disconnected: %v", next.Type)
			}
		default:
			t.Fatalf("unexpected first event %v", e.Type)
		}
	}
}
