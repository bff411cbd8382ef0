package gamenet

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for i := 1; i <= 3; i++ {
		q.push(Event{Type: DataReceived, ConnID: i})
	}
	if q.len() != 3 {
		t.Errorf("len = %d, want 3", q.len())
	}

	for i := 1; i <= 3; i++ {
		e, ok := q.pop()
		if !ok || e.ConnID != i {
			t.Fatalf("pop %d = %d, %v", i, e.ConnID, ok)
		}
	}

	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue returned an event")
	}
}

func TestEventQueue_Wait(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.push(Event{Type: Connected, ConnID: 9})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := q.wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if e.ConnID != 9 {
		t.Errorf("ConnID = %d, want 9", e.ConnID)
	}
}

func TestEventQueue_WaitCanceled(t *testing.T) {
	q := newEventQueue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.wait(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := newEventQueue()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.push(Event{Type: DataReceived})
			}
		}()
	}
	wg.Wait()

	n := 0
	for {
		if _, ok := q.pop(); !ok {
			break
		}
		n++
	}
	if n != 1000 {
		t.Errorf("popped %d events, want 1000", n)
	}
}

func TestEvent_ReleaseWithoutData(t *testing.T) {
	// Must not panic.
	Event{Type: Connected}.Release()
}

func TestEventType_String(t *testing.T) {
	tests := map[EventType]string{
		Connected:     "connected",
		DataReceived:  "data",
		Disconnected:  "disconnected",
		ConnectFailed: "connect_failed",
		EventType(99): "unknown",
	}
	for typ, want := range tests {
		if typ.String() != want {
			t.Errorf("String() = %s, want %s", typ.String(), want)
		}
	}
}
