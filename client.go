package gamenet

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Client maintains at most one connection to a server. Connecting is
// asynchronous: Start returns immediately and the outcome is reported as a
// Connected or ConnectFailed event.
type Client struct {
	opts   options
	logger Logger
	events *eventQueue
	conn   *Conn

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client with the given options.
func NewClient(opt ...Option) (*Client, error) {
	opts, err := newOptions(opt)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:   opts,
		logger: WithComponent(opts.logger, "client"),
		events: newEventQueue(),
	}
	c.conn = newConn(&c.opts, c.events, c.logger)
	return c, nil
}

// Start begins connecting to host:port in the background.
// Starting a client that is connecting or connected panics.
func (c *Client) Start(host string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		panic("gamenet: client already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.state = Starting
	c.cancel = cancel
	c.done = done

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c.logger.Info("connecting", "addr", addr)

	go func() {
		defer close(done)
		c.connect(ctx, addr)
	}()
}

func (c *Client) connect(ctx context.Context, addr string) {
	dialer := net.Dialer{Timeout: c.opts.dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()

		c.opts.metrics.connectFailed()
		c.logger.Warn("connect failed", "addr", addr, "error", err)
		c.events.push(Event{Type: ConnectFailed, Err: errors.Wrapf(err, "connect %s", addr)})
		return
	}

	tcp := raw.(*net.TCPConn)
	_ = tcp.SetNoDelay(c.opts.noDelay)

	c.mu.Lock()
	if ctx.Err() != nil || c.state != Starting {
		// Stop owns the state once it has begun.
		if c.state == Starting {
			c.state = Idle
		}
		c.mu.Unlock()
		_ = tcp.Close()
		cause := ctx.Err()
		if cause == nil {
			cause = errors.Wrap(ErrConnectionClosed, "client stopped")
		}
		c.events.push(Event{Type: ConnectFailed, Err: cause})
		return
	}
	gen := c.conn.assign(ctx, tcp, 0)
	c.gen = gen
	c.state = Active
	// Queued under the lock so a concurrent Stop cannot report Disconnected first.
	c.events.push(Event{Type: Connected})
	c.mu.Unlock()

	c.opts.metrics.connected()
	c.logger.Info("connected", "addr", c.conn.Addr())

	err = c.conn.run()
	c.disconnect(gen, err)
	c.conn.recycle()

	c.mu.Lock()
	if c.gen == gen {
		c.state = Idle
	}
	c.mu.Unlock()
}

// disconnect tears down generation gen once and queues Disconnected.
func (c *Client) disconnect(gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen || !c.conn.active.CompareAndSwap(true, false) {
		c.mu.Unlock()
		return
	}
	c.conn.cancel()
	_ = c.conn.rawConn.Close()
	addr := c.conn.Addr()
	c.mu.Unlock()

	if errors.Is(cause, context.Canceled) {
		cause = nil
	}

	c.opts.metrics.disconnect()
	c.logger.Info("disconnected", "addr", addr, "error", cause)
	c.events.push(Event{Type: Disconnected, Err: cause})
}

// Stop cancels a pending connect or closes the connection, and waits for the
// connection loops to exit. Stopping an idle client does nothing.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == Idle || c.state == Stopping {
		c.mu.Unlock()
		return
	}
	c.state = Stopping
	cancel, done, gen := c.cancel, c.done, c.gen
	c.mu.Unlock()

	c.disconnect(gen, nil)
	cancel()
	<-done

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()
}

// Send queues payload for the server. It returns ErrConnectionClosed when the
// client is not connected.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Active {
		return ErrConnectionClosed
	}
	return c.conn.send(payload)
}

// TryNextEvent returns the next queued event without blocking.
func (c *Client) TryNextEvent() (Event, bool) {
	return c.events.pop()
}

// NextEvent blocks until an event is queued or ctx is done.
func (c *Client) NextEvent(ctx context.Context) (Event, error) {
	return c.events.wait(ctx)
}

// RemoteAddr returns the server address while connected.
func (c *Client) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Active {
		return ""
	}
	return c.conn.Addr()
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsActive reports whether the client is connected.
func (c *Client) IsActive() bool {
	return c.State() == Active
}
