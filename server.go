package gamenet

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Server or Client.
type State int32

const (
	// Idle means not started, or fully stopped.
	Idle State = iota
	// Starting means a listen or connect is in progress.
	Starting
	// Active means the transport is running.
	Active
	// Stopping means shutdown is in progress.
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Server accepts TCP connections into a bounded pool and reports them as
// events. Send, Broadcast, Disconnect and TryNextEvent are meant to be called
// from a single consumer goroutine.
type Server struct {
	opts   options
	logger Logger
	events *eventQueue
	pool   *connPool

	mu       sync.Mutex
	state    State
	listener *net.TCPListener
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// NewServer creates a server with the given options.
func NewServer(opt ...Option) (*Server, error) {
	opts, err := newOptions(opt)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:   opts,
		logger: WithComponent(opts.logger, "server"),
		events: newEventQueue(),
	}
	s.pool = newConnPool(&s.opts, s.events, s.logger)
	return s, nil
}

// Start listens on the configured host and the given port and starts
// accepting connections. Port 0 picks a free port, see Addr.
// Starting a server that is not idle panics.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		panic("gamenet: server already started")
	}

	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(s.opts.listenHost, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(err, "resolve listen address")
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = listener
	s.cancel = cancel
	s.group = new(errgroup.Group)
	s.state = Active

	s.logger.Info("server started", "addr", listener.Addr(),
		"max_connections", s.opts.maxConnections,
		"max_message_size", s.opts.maxMessageSize)

	s.group.Go(func() error {
		return s.acceptLoop(ctx, listener)
	})

	return nil
}

// Stop disconnects every connection, closes the listener and waits for all
// connection loops to exit. Disconnected events stay queued for the consumer.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	listener, cancel, group := s.listener, s.cancel, s.group
	s.mu.Unlock()

	s.logger.Info("server stopping", "connections", s.pool.activeCount())

	for _, ref := range s.pool.snapshot() {
		s.disconnect(ref.conn, ref.gen, nil)
	}

	cancel()
	err := listener.Close()
	if werr := group.Wait(); werr != nil && err == nil {
		err = werr
	}
	s.pool.reset()

	s.mu.Lock()
	s.state = Idle
	s.listener = nil
	s.mu.Unlock()

	s.logger.Info("server stopped")

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// acceptLoop accepts connections while a slot is free. At capacity it stops
// accepting, leaving new peers in the listen backlog, and polls for a slot
// every accept interval.
func (s *Server) acceptLoop(ctx context.Context, listener *net.TCPListener) error {
	limiter := rate.NewLimiter(rate.Every(s.opts.acceptInterval), s.opts.acceptBurst)

	for {
		if s.pool.inUseCount() >= s.opts.maxConnections {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.opts.acceptInterval):
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		raw, err := listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.accept(ctx, raw)
	}
}

func (s *Server) accept(ctx context.Context, raw *net.TCPConn) {
	_ = raw.SetNoDelay(s.opts.noDelay)

	c, gen, ok := s.pool.acquire(ctx, raw)
	if !ok {
		s.logger.Warn("connection rejected, pool full", "remote_addr", raw.RemoteAddr())
		_ = raw.Close()
		return
	}

	s.opts.metrics.connected()
	s.logger.Debug("accepted connection", "id", c.ID(), "remote_addr", c.Addr())
	s.events.push(Event{Type: Connected, ConnID: c.ID()})

	s.group.Go(func() error {
		err := c.run()
		s.disconnect(c, gen, err)
		s.pool.release(c, gen)
		return nil
	})
}

// disconnect tears down one generation of a slot. Only the first call per
// generation has an effect.
func (s *Server) disconnect(c *Conn, gen uint64, cause error) {
	id, addr, ok := s.pool.deactivate(c, gen)
	if !ok {
		return
	}

	if errors.Is(cause, context.Canceled) {
		cause = nil
	}

	s.opts.metrics.disconnect()
	s.logger.Debug("connection closed", "id", id, "remote_addr", addr, "error", cause)
	s.events.push(Event{Type: Disconnected, ConnID: id, Err: cause})
}

func (s *Server) checkActive(op string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != Active {
		return errors.Wrapf(ErrConnectionClosed, "%s on a server that is %s", op, state)
	}
	return nil
}

func (s *Server) mustBeActive(op string) {
	if err := s.checkActive(op); err != nil {
		panic("gamenet: " + err.Error())
	}
}

// Send queues payload for connection id. It never blocks: ErrBufferFull
// reports that the connection has too many frames queued. Calling Send on a
// server that is not active panics.
func (s *Server) Send(id int, payload []byte) error {
	s.mustBeActive("Send")
	return s.send(id, payload)
}

// TrySend is Send for callers racing Stop: a server that is not active yields
// ErrConnectionClosed instead of a panic.
func (s *Server) TrySend(id int, payload []byte) error {
	if err := s.checkActive("Send"); err != nil {
		return err
	}
	return s.send(id, payload)
}

func (s *Server) send(id int, payload []byte) error {
	err := s.pool.withConn(id, func(c *Conn) error {
		return c.send(payload)
	})
	if errors.Is(err, ErrUnknownConnection) {
		s.logger.Warn("send to unknown connection", "id", id)
	}
	return err
}

// Broadcast queues payload for every live connection. It returns the first
// error encountered but still attempts every connection.
func (s *Server) Broadcast(payload []byte) error {
	s.mustBeActive("Broadcast")
	return s.broadcast(payload)
}

// TryBroadcast is Broadcast returning ErrConnectionClosed on a server that
// is not active.
func (s *Server) TryBroadcast(payload []byte) error {
	if err := s.checkActive("Broadcast"); err != nil {
		return err
	}
	return s.broadcast(payload)
}

func (s *Server) broadcast(payload []byte) error {
	var first error
	for _, ref := range s.pool.snapshot() {
		err := s.pool.withConn(ref.id, func(c *Conn) error {
			return c.send(payload)
		})
		if err != nil && first == nil {
			first = errors.Wrapf(err, "connection %d", ref.id)
		}
	}
	return first
}

// Disconnect closes connection id. A Disconnected event follows.
func (s *Server) Disconnect(id int) error {
	s.mustBeActive("Disconnect")
	return s.disconnectID(id)
}

// TryDisconnect is Disconnect returning ErrConnectionClosed on a server that
// is not active.
func (s *Server) TryDisconnect(id int) error {
	if err := s.checkActive("Disconnect"); err != nil {
		return err
	}
	return s.disconnectID(id)
}

func (s *Server) disconnectID(id int) error {
	c, gen, ok := s.pool.lookup(id)
	if !ok {
		s.logger.Warn("disconnect of unknown connection", "id", id)
		return ErrUnknownConnection
	}
	s.disconnect(c, gen, nil)
	return nil
}

// TryNextEvent returns the next queued event without blocking.
func (s *Server) TryNextEvent() (Event, bool) {
	return s.events.pop()
}

// NextEvent blocks until an event is queued or ctx is done.
func (s *Server) NextEvent(ctx context.Context) (Event, error) {
	return s.events.wait(ctx)
}

// Addr returns the listener's network address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	return s.pool.activeCount()
}

// RemoteAddr returns the address of connection id.
func (s *Server) RemoteAddr(id int) (string, bool) {
	c, _, ok := s.pool.lookup(id)
	if !ok {
		return "", false
	}
	return c.Addr(), true
}

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsActive reports whether the server is running.
func (s *Server) IsActive() bool {
	return s.State() == Active
}
