// Package gamenet provides a length-prefixed TCP transport for game clients
// and servers. Connections live in a bounded pool, every connection runs one
// read loop and one write loop, and the application pulls Connected,
// DataReceived and Disconnected events from a single queue.
package gamenet

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by transport operations.
var (
	// ErrMessageTooLarge is returned when a payload does not fit the configured frame size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrBufferFull is returned when every send frame of a connection is queued.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrUnknownConnection is returned for a connection id that is not live.
	ErrUnknownConnection = errors.New("unknown connection")
)

// Conn is one connection slot. A slot is reused for later connections once
// both of its loops have exited and it has been released; the generation
// distinguishes those uses.
type Conn struct {
	id         int
	generation uint64
	active     atomic.Bool
	inUse      bool // guarded by the owning pool

	rawConn *net.TCPConn
	reader  *bufio.Reader
	addr    string
	ctx     context.Context
	cancel  context.CancelFunc

	sendFree  chan *frame
	sendQueue chan *frame
	recvFree  chan *frame

	opts    *options
	events  *eventQueue
	logger  Logger
	metrics *Metrics
}

func newConn(opts *options, events *eventQueue, logger Logger) *Conn {
	return &Conn{
		reader:    bufio.NewReaderSize(nil, opts.maxMessageSize),
		sendFree:  make(chan *frame, opts.sendBufferSize),
		sendQueue: make(chan *frame, opts.sendBufferSize),
		recvFree:  make(chan *frame, opts.receiveBufferSize),
		opts:      opts,
		events:    events,
		logger:    logger,
		metrics:   opts.metrics,
	}
}

// assign binds the slot to a new socket and returns the generation of this
// use. Frames abandoned by the previous use are replaced.
func (c *Conn) assign(parent context.Context, raw *net.TCPConn, id int) uint64 {
	c.generation++
	c.id = id
	c.rawConn = raw
	c.reader.Reset(raw)
	c.addr = raw.RemoteAddr().String()
	c.ctx, c.cancel = context.WithCancel(parent)

	fillFreeList(c.sendFree, c.opts.maxMessageSize)
	fillFreeList(c.recvFree, c.opts.maxMessageSize)

	c.active.Store(true)
	return c.generation
}

// recycle returns queued but unwritten frames to the free list.
func (c *Conn) recycle() {
	for {
		select {
		case f := <-c.sendQueue:
			select {
			case c.sendFree <- f:
			default:
			}
		default:
			return
		}
	}
}

// ID returns the connection id.
func (c *Conn) ID() int {
	return c.id
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() string {
	return c.addr
}

// IsActive reports whether the connection is live.
func (c *Conn) IsActive() bool {
	return c.active.Load()
}

// send queues payload for the write loop without blocking.
func (c *Conn) send(payload []byte) error {
	if !c.active.Load() {
		return ErrConnectionClosed
	}

	if len(payload) > c.opts.maxMessageSize-HeaderSize {
		c.metrics.sendFailed("too_large")
		return errors.Wrapf(ErrMessageTooLarge, "%d > %d bytes", len(payload), c.opts.maxMessageSize-HeaderSize)
	}

	var f *frame
	select {
	case f = <-c.sendFree:
	default:
		c.metrics.sendFailed("buffer_full")
		return ErrBufferFull
	}

	if err := f.fill(payload); err != nil {
		c.sendFree <- f
		return err
	}

	// sendQueue has room for every frame of the slot.
	c.sendQueue <- f
	return nil
}

// run starts the connection's read and write loops and blocks until one of
// them fails or the connection context is canceled. The socket is closed when
// run returns.
func (c *Conn) run() error {
	group, child := errgroup.WithContext(c.ctx)
	stop := context.AfterFunc(child, func() {
		_ = c.rawConn.Close()
	})
	defer stop()

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	_ = c.rawConn.Close()
	return err
}

// readLoop reads frames into receive buffers and queues them as events.
// It waits for the consumer to release a buffer when all are held.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		var f *frame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f = <-c.recvFree:
		}

		if c.opts.readTimeout > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
		}

		if err := f.readFrom(c.reader); err != nil {
			select {
			case c.recvFree <- f:
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("read error", "id", c.id, "addr", c.addr, "error", err)
			return err
		}

		c.metrics.frameReceived(f.n)
		lease := f.hold()
		c.events.push(Event{Type: DataReceived, ConnID: c.id, Data: f.payload(), frame: f, lease: lease})
	}
}

// writeLoop writes queued frames to the socket in order.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-c.sendQueue:
			_, err := c.rawConn.Write(f.bytes())
			n := f.n
			c.sendFree <- f

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("write error", "id", c.id, "addr", c.addr, "error", err)
				return err
			}
			c.metrics.frameSent(n)
		}
	}
}
