package gamenet

import (
	"context"
	"sync"
)

// EventType identifies what happened on a connection.
type EventType int

const (
	// Connected is emitted once a connection is established.
	Connected EventType = iota
	// DataReceived carries one frame payload.
	DataReceived
	// Disconnected is emitted exactly once per established connection.
	Disconnected
	// ConnectFailed is emitted by a client whose connection attempt failed.
	ConnectFailed
)

func (t EventType) String() string {
	switch t {
	case Connected:
		return "connected"
	case DataReceived:
		return "data"
	case Disconnected:
		return "disconnected"
	case ConnectFailed:
		return "connect_failed"
	default:
		return "unknown"
	}
}

// Event is a transport notification pulled by the consumer.
type Event struct {
	Type EventType
	// ConnID identifies the server connection. It is zero for client events.
	ConnID int
	// Data is the frame payload of a DataReceived event. It stays valid until
	// Release is called.
	Data []byte
	// Err is the cause of a Disconnected or ConnectFailed event, if any.
	Err error

	frame *frame
	lease uint64
}

// Release returns the receive buffer behind Data to its connection.
// It is safe to call more than once and on events without data.
func (e Event) Release() {
	if e.frame != nil {
		e.frame.release(e.lease)
	}
}

// eventQueue is an unbounded FIFO shared by the I/O goroutines and a single
// consumer.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	head   int
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return Event{}, false
	}
	e := q.items[q.head]
	q.items[q.head] = Event{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return e, true
}

// wait blocks until an event is available or ctx is done.
func (q *eventQueue) wait(ctx context.Context) (Event, error) {
	for {
		if e, ok := q.pop(); ok {
			return e, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
