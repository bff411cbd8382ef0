package gamenet

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// createTestTCPPair creates a connected pair of TCP connections for testing
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	// Connect client in goroutine
	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	// Accept server side
	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
		return nil, nil
	case <-time.After(5 * time.Second):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
		return nil, nil
	}
}

// newTestConn binds a fresh slot to the server side of a TCP pair.
func newTestConn(t *testing.T, opt ...Option) (*Conn, *eventQueue, *net.TCPConn) {
	t.Helper()

	opts, err := newOptions(opt)
	if err != nil {
		t.Fatalf("newOptions failed: %v", err)
	}

	serverConn, clientConn := createTestTCPPair(t)
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	events := newEventQueue()
	conn := newConn(&opts, events, &mockLogger{})
	conn.assign(context.Background(), serverConn, 7)
	return conn, events, clientConn
}

// writeFrame writes one length-prefixed frame to w.
func writeFrame(t *testing.T, w io.Writer, payload []byte) {
	t.Helper()

	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, len(payload))
	copy(buf[HeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		t.Fatalf("write frame failed: %v", err)
	}
}

// readTestFrame reads one length-prefixed frame from r.
func readTestFrame(t *testing.T, r io.Reader) []byte {
	t.Helper()

	f := newFrame(MaxFrameSize, nil)
	if err := f.readFrom(r); err != nil {
		t.Fatalf("read frame failed: %v", err)
	}
	return append([]byte(nil), f.payload()...)
}

func waitEvent(t *testing.T, q *eventQueue) Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := q.wait(ctx)
	if err != nil {
		t.Fatalf("timeout waiting for event: %v", err)
	}
	return e
}

func TestFrame_FillAndRead(t *testing.T) {
	f := newFrame(16, nil)

	if err := f.fill([]byte("hello")); err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	want := []byte{5, 0, 'h', 'e', 'l', 'l', 'o'}
	if !bytes.Equal(f.bytes(), want) {
		t.Errorf("bytes = %v, want %v", f.bytes(), want)
	}

	g := newFrame(16, nil)
	if err := g.readFrom(bytes.NewReader(f.bytes())); err != nil {
		t.Fatalf("readFrom failed: %v", err)
	}
	if string(g.payload()) != "hello" {
		t.Errorf("payload = %q, want hello", g.payload())
	}
}

func TestFrame_EmptyPayload(t *testing.T) {
	f := newFrame(16, nil)
	if err := f.readFrom(bytes.NewReader([]byte{0, 0})); err != nil {
		t.Fatalf("readFrom failed: %v", err)
	}
	if len(f.payload()) != 0 {
		t.Errorf("payload length = %d, want 0", len(f.payload()))
	}
}

func TestFrame_TooLarge(t *testing.T) {
	f := newFrame(8, nil)

	// 6 bytes of payload fit, 7 do not.
	if err := f.fill(make([]byte, 6)); err != nil {
		t.Errorf("fill of max payload failed: %v", err)
	}
	if err := f.fill(make([]byte, 7)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}

	err := f.readFrom(bytes.NewReader([]byte{7, 0, 1, 2, 3, 4, 5, 6, 7}))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge on read, got %v", err)
	}
}

func TestFrame_Truncated(t *testing.T) {
	f := newFrame(16, nil)

	err := f.readFrom(bytes.NewReader([]byte{4, 0, 1, 2}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}

	err = f.readFrom(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrame_ReleaseOncePerLease(t *testing.T) {
	home := make(chan *frame, 2)
	f := newFrame(8, home)

	lease := f.hold()
	f.release(lease)
	f.release(lease)

	if len(home) != 1 {
		t.Fatalf("free list length = %d, want 1", len(home))
	}
	<-home

	next := f.hold()
	f.release(lease) // stale
	if len(home) != 0 {
		t.Error("stale release returned the frame")
	}
	f.release(next)
	if len(home) != 1 {
		t.Error("current release did not return the frame")
	}
}

func TestConn_Assign(t *testing.T) {
	conn, _, clientConn := newTestConn(t)

	if conn.ID() != 7 {
		t.Errorf("ID = %d, want 7", conn.ID())
	}
	if conn.Addr() != clientConn.LocalAddr().String() {
		t.Errorf("Addr = %s, want %s", conn.Addr(), clientConn.LocalAddr())
	}
	if !conn.IsActive() {
		t.Error("connection should be active")
	}
	if len(conn.sendFree) != DefaultSendBufferSize {
		t.Errorf("send free list = %d, want %d", len(conn.sendFree), DefaultSendBufferSize)
	}
	if len(conn.recvFree) != DefaultReceiveBufferSize {
		t.Errorf("receive free list = %d, want %d", len(conn.recvFree), DefaultReceiveBufferSize)
	}
}

func TestConn_Send_TooLarge(t *testing.T) {
	conn, _, _ := newTestConn(t, MaxMessageSizeOption(64))

	err := conn.send(make([]byte, 63))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
	if len(conn.sendQueue) != 0 {
		t.Error("oversized payload was queued")
	}
	if len(conn.sendFree) != DefaultSendBufferSize {
		t.Error("oversized payload consumed a send frame")
	}
}

func TestConn_Send_BufferFull(t *testing.T) {
	conn, _, _ := newTestConn(t, SendBufferSizeOption(2))

	// No write loop is running, so frames stay queued.
	for i := 0; i < 2; i++ {
		if err := conn.send([]byte("x")); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	if err := conn.send([]byte("x")); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}

	conn.recycle()
	if len(conn.sendFree) != 2 {
		t.Errorf("recycle left %d free frames, want 2", len(conn.sendFree))
	}
}

func TestConn_Send_Inactive(t *testing.T) {
	conn, _, _ := newTestConn(t)
	conn.active.Store(false)

	if err := conn.send([]byte("x")); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConn_Run_ReadWrite(t *testing.T) {
	conn, events, clientConn := newTestConn(t)

	done := make(chan error, 1)
	go func() {
		done <- conn.run()
	}()

	writeFrame(t, clientConn, []byte("hello world"))

	e := waitEvent(t, events)
	if e.Type != DataReceived {
		t.Fatalf("event type = %v, want data", e.Type)
	}
	if e.ConnID != 7 {
		t.Errorf("ConnID = %d, want 7", e.ConnID)
	}
	if string(e.Data) != "hello world" {
		t.Errorf("Data = %q, want hello world", e.Data)
	}
	e.Release()

	if err := conn.send([]byte("reply")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if got := readTestFrame(t, clientConn); string(got) != "reply" {
		t.Errorf("client received %q, want reply", got)
	}

	// Close client connection to trigger read error and exit
	clientConn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to complete")
	}
}

func TestConn_Run_Canceled(t *testing.T) {
	conn, _, _ := newTestConn(t)

	done := make(chan error, 1)
	go func() {
		done <- conn.run()
	}()

	conn.cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to complete")
	}
}

func TestConn_Run_OversizedFrame(t *testing.T) {
	conn, _, clientConn := newTestConn(t, MaxMessageSizeOption(32))

	done := make(chan error, 1)
	go func() {
		done <- conn.run()
	}()

	writeFrame(t, clientConn, make([]byte, 31))

	select {
	case err := <-done:
		if !errors.Is(err, ErrMessageTooLarge) {
			t.Errorf("expected ErrMessageTooLarge, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to complete")
	}
}

func TestConn_Run_ReceiveBackPressure(t *testing.T) {
	conn, events, clientConn := newTestConn(t, ReceiveBufferSizeOption(1))

	go func() {
		_ = conn.run()
	}()
	defer conn.cancel()

	writeFrame(t, clientConn, []byte("one"))
	writeFrame(t, clientConn, []byte("two"))

	first := waitEvent(t, events)
	if string(first.Data) != "one" {
		t.Fatalf("first = %q, want one", first.Data)
	}

	// The only receive frame is held, so the second frame waits.
	time.Sleep(50 * time.Millisecond)
	if _, ok := events.pop(); ok {
		t.Fatal("second frame delivered while the buffer was held")
	}

	first.Release()

	second := waitEvent(t, events)
	if string(second.Data) != "two" {
		t.Errorf("second = %q, want two", second.Data)
	}
	second.Release()
}

func TestConn_Run_ReadTimeout(t *testing.T) {
	conn, _, _ := newTestConn(t, ReadTimeoutOption(50*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		done <- conn.run()
	}()

	select {
	case err := <-done:
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			t.Errorf("expected timeout error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for read deadline")
	}
}

func TestConn_Run_WriteOrder(t *testing.T) {
	conn, _, clientConn := newTestConn(t)

	go func() {
		_ = conn.run()
	}()
	defer conn.cancel()

	for i := byte(0); i < 10; i++ {
		for {
			err := conn.send([]byte{i})
			if err == nil {
				break
			}
			if err != ErrBufferFull {
				t.Fatalf("send failed: %v", err)
			}
			time.Sleep(time.Millisecond)
		}
	}

	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := byte(0); i < 10; i++ {
		got := readTestFrame(t, clientConn)
		if len(got) != 1 || got[0] != i {
			t.Fatalf("frame %d = %v", i, got)
		}
	}
}
