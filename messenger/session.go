package messenger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/gamenet"
	"github.com/Zereker/gamenet/serial"
)

const (
	// DefaultKickGrace is how long a kicked connection stays open so the
	// KickMessage can reach the client.
	DefaultKickGrace = 500 * time.Millisecond

	runPollInterval = 50 * time.Millisecond
)

// ClientSession drives a Handler from the events of a gamenet.Client. Pings
// from the server are answered and a KickMessage stops the client.
type ClientSession struct {
	client  *gamenet.Client
	handler *Handler
	logger  gamenet.Logger

	mu             sync.Mutex
	onConnected    func()
	onDisconnected func(err error)
	kickReason     string
}

// NewClientSession binds a new Handler to client.
func NewClientSession(client *gamenet.Client, reg *Registry, opts ...HandlerOption) *ClientSession {
	s := &ClientSession{
		client:  client,
		handler: NewHandler(reg, client, opts...),
	}
	s.logger = s.handler.logger
	s.installSystemListeners()
	return s
}

func (s *ClientSession) installSystemListeners() {
	_ = SetListener(s.handler, func(m Message[PingMessage]) {
		_ = Respond(m.Handler, m.ID, PongMessage(m.Data))
	})
	_ = SetListener(s.handler, func(m Message[KickMessage]) {
		s.mu.Lock()
		s.kickReason = m.Data.Reason
		s.mu.Unlock()

		s.logger.Warn("kicked by server", "reason", m.Data.Reason)
		s.client.Stop()
	})
}

// Handler returns the session's handler for registering listeners and sending.
func (s *ClientSession) Handler() *Handler {
	return s.handler
}

// OnConnected sets the function called when the connection is established.
func (s *ClientSession) OnConnected(fn func()) {
	s.mu.Lock()
	s.onConnected = fn
	s.mu.Unlock()
}

// OnDisconnected sets the function called when the connection ends or fails
// to establish.
func (s *ClientSession) OnDisconnected(fn func(err error)) {
	s.mu.Lock()
	s.onDisconnected = fn
	s.mu.Unlock()
}

// KickReason returns the reason of the last KickMessage received.
func (s *ClientSession) KickReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kickReason
}

// HandleEvent processes one transport event.
func (s *ClientSession) HandleEvent(e gamenet.Event) {
	switch e.Type {
	case gamenet.Connected:
		s.handler.touch()
		s.mu.Lock()
		fn := s.onConnected
		s.mu.Unlock()
		if fn != nil {
			fn()
		}

	case gamenet.DataReceived:
		_ = s.handler.Unpack(e.Data)
		e.Release()

	case gamenet.Disconnected, gamenet.ConnectFailed:
		s.handler.cancelPending(errors.Wrap(ErrInactive, "disconnected"))
		s.mu.Lock()
		fn := s.onDisconnected
		s.mu.Unlock()
		if fn != nil {
			fn(e.Err)
		}
	}
}

// Poll handles every queued event without blocking and returns how many
// there were.
func (s *ClientSession) Poll() int {
	n := 0
	for {
		e, ok := s.client.TryNextEvent()
		if !ok {
			return n
		}
		s.HandleEvent(e)
		n++
	}
}

// Run handles events until ctx is done.
func (s *ClientSession) Run(ctx context.Context) error {
	for {
		e, err := s.client.NextEvent(ctx)
		if err != nil {
			return err
		}
		s.HandleEvent(e)
	}
}

// Ping measures the round trip to the server. It must not be called from
// the goroutine handling events.
func (s *ClientSession) Ping(ctx context.Context) (time.Duration, error) {
	return ping(ctx, s.handler)
}

// Authenticate sends token and returns the session token the server
// answers with. It must not be called from the goroutine handling events.
func (s *ClientSession) Authenticate(ctx context.Context, token string) (string, error) {
	rsp := Request[AuthMessage, AuthMessage](ctx, s.handler, AuthMessage{Token: token}, 0)
	if rsp.HasError() {
		return "", rsp.Err
	}
	return rsp.Data.Token, nil
}

func ping(ctx context.Context, h *Handler) (time.Duration, error) {
	start := time.Now()
	rsp := Request[PingMessage, PongMessage](ctx, h, PingMessage{Timestamp: start}, 0)
	if rsp.HasError() {
		return 0, rsp.Err
	}
	return time.Since(start), nil
}

// Authenticator checks the token of a connection and returns the session
// token sent back to the client. A non-nil error is reported to the client
// and the connection is kicked.
type Authenticator func(connID int, token string) (string, error)

// connSender addresses one connection of a server.
type connSender struct {
	server *gamenet.Server
	id     int
}

func (c connSender) Send(payload []byte) error {
	return c.server.TrySend(c.id, payload)
}

func (c connSender) IsActive() bool {
	if !c.server.IsActive() {
		return false
	}
	_, ok := c.server.RemoteAddr(c.id)
	return ok
}

// ServerSession keeps one Handler per connection of a gamenet.Server.
// Handlers of closed connections are reset and reused for new ones.
type ServerSession struct {
	server   *gamenet.Server
	registry *Registry
	opts     []HandlerOption
	logger   gamenet.Logger

	mu             sync.Mutex
	handlers       map[int]*Handler
	free           []*Handler
	kicks          map[int]time.Time
	kickGrace      time.Duration
	authenticate   Authenticator
	authenticated  map[int]bool
	onConnected    func(connID int, h *Handler)
	onDisconnected func(connID int, err error)
}

// NewServerSession creates a session over server. The options apply to
// every connection handler.
func NewServerSession(server *gamenet.Server, reg *Registry, opts ...HandlerOption) *ServerSession {
	probe := &Handler{}
	for _, o := range opts {
		o(probe)
	}
	return &ServerSession{
		server:        server,
		registry:      reg,
		opts:          opts,
		logger:        gamenet.WithComponent(probe.logger, "session"),
		handlers:      make(map[int]*Handler),
		kicks:         make(map[int]time.Time),
		kickGrace:     DefaultKickGrace,
		authenticated: make(map[int]bool),
	}
}

// OnConnected sets the function called with the handler of every new
// connection. Install per-connection listeners there.
func (s *ServerSession) OnConnected(fn func(connID int, h *Handler)) {
	s.mu.Lock()
	s.onConnected = fn
	s.mu.Unlock()
}

// OnDisconnected sets the function called when a connection ends.
func (s *ServerSession) OnDisconnected(fn func(connID int, err error)) {
	s.mu.Lock()
	s.onDisconnected = fn
	s.mu.Unlock()
}

// SetAuthenticator installs fn as the handler of AuthMessage requests.
func (s *ServerSession) SetAuthenticator(fn Authenticator) {
	s.mu.Lock()
	s.authenticate = fn
	s.mu.Unlock()
}

// SetKickGrace sets how long a kicked connection stays open.
func (s *ServerSession) SetKickGrace(d time.Duration) {
	s.mu.Lock()
	s.kickGrace = d
	s.mu.Unlock()
}

// Handler returns the handler of connection connID.
func (s *ServerSession) Handler(connID int) (*Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handlers[connID]
	return h, ok
}

// Authenticated reports whether connID passed the authenticator.
func (s *ServerSession) Authenticated(connID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated[connID]
}

// ConnectionIDs returns the ids of the connections with a handler, sorted.
func (s *ServerSession) ConnectionIDs() []int {
	s.mu.Lock()
	ids := make([]int, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Ints(ids)
	return ids
}

func (s *ServerSession) acquire(connID int) *Handler {
	sender := connSender{server: s.server, id: connID}

	s.mu.Lock()
	defer s.mu.Unlock()

	var h *Handler
	if n := len(s.free); n > 0 {
		h = s.free[n-1]
		s.free = s.free[:n-1]
		h.rebind(sender)
	} else {
		h = NewHandler(s.registry, sender, s.opts...)
	}
	s.handlers[connID] = h
	return h
}

func (s *ServerSession) release(connID int) {
	s.mu.Lock()
	h, ok := s.handlers[connID]
	delete(s.handlers, connID)
	delete(s.kicks, connID)
	delete(s.authenticated, connID)
	s.mu.Unlock()

	if !ok {
		return
	}
	h.Reset()
	h.rebind(nil)

	s.mu.Lock()
	s.free = append(s.free, h)
	s.mu.Unlock()
}

func (s *ServerSession) installSystemListeners(connID int, h *Handler) {
	_ = SetListener(h, func(m Message[PingMessage]) {
		_ = Respond(m.Handler, m.ID, PongMessage(m.Data))
	})
	_ = SetListener(h, func(m Message[AuthMessage]) {
		s.mu.Lock()
		fn := s.authenticate
		s.mu.Unlock()

		if fn == nil {
			_ = RespondError[AuthMessage](m.Handler, m.ID, "authentication not supported")
			return
		}

		token, err := fn(connID, m.Data.Token)
		if err != nil {
			s.logger.Info("authentication failed", "id", connID, "error", err)
			_ = RespondError[AuthMessage](m.Handler, m.ID, err.Error())
			s.scheduleKick(connID)
			return
		}

		s.mu.Lock()
		s.authenticated[connID] = true
		s.mu.Unlock()
		_ = Respond(m.Handler, m.ID, AuthMessage{Token: token})
	})
}

// HandleEvent processes one transport event.
func (s *ServerSession) HandleEvent(e gamenet.Event) {
	switch e.Type {
	case gamenet.Connected:
		h := s.acquire(e.ConnID)
		s.installSystemListeners(e.ConnID, h)

		s.mu.Lock()
		fn := s.onConnected
		s.mu.Unlock()
		if fn != nil {
			fn(e.ConnID, h)
		}

	case gamenet.DataReceived:
		if h, ok := s.Handler(e.ConnID); ok {
			_ = h.Unpack(e.Data)
		} else {
			s.logger.Warn("data for connection without handler", "id", e.ConnID)
		}
		e.Release()

	case gamenet.Disconnected:
		s.release(e.ConnID)

		s.mu.Lock()
		fn := s.onDisconnected
		s.mu.Unlock()
		if fn != nil {
			fn(e.ConnID, e.Err)
		}
	}
}

// Poll handles every queued event without blocking, then closes kicked
// connections whose grace period is over. It returns the number of events.
func (s *ServerSession) Poll() int {
	n := 0
	for {
		e, ok := s.server.TryNextEvent()
		if !ok {
			break
		}
		s.HandleEvent(e)
		n++
	}
	s.expireKicks(time.Now())
	return n
}

// Run handles events until ctx is done.
func (s *ServerSession) Run(ctx context.Context) error {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, runPollInterval)
		e, err := s.server.NextEvent(waitCtx)
		cancel()

		if err == nil {
			s.HandleEvent(e)
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		s.expireKicks(time.Now())
	}
}

// Broadcast sends v to every connection as one encoded frame. Broadcast
// messages carry correlation id zero and cannot be answered.
func Broadcast[T any](s *ServerSession, v T) error {
	cfg, err := configFor[T](s.registry)
	if err != nil {
		return err
	}
	if !s.server.IsActive() {
		s.logger.Warn("broadcast on inactive server", "message", cfg.Name)
		return ErrInactive
	}

	w := s.registry.writers.Get()
	defer s.registry.writers.Put(w)

	if err := writeHeader(w, header{kind: KindSimple, hash: cfg.Hash}); err != nil {
		return err
	}
	if err := serial.Serialize(s.registry.types, w, v); err != nil {
		return errors.Wrapf(err, "broadcast %s", cfg.Name)
	}
	return s.server.TryBroadcast(w.Bytes())
}

// Kick sends a KickMessage to connID and closes the connection after the
// kick grace period.
func (s *ServerSession) Kick(connID int, reason string) error {
	h, ok := s.Handler(connID)
	if !ok {
		return gamenet.ErrUnknownConnection
	}
	if _, err := Send(h, KickMessage{Reason: reason}); err != nil {
		_ = s.server.TryDisconnect(connID)
		return err
	}
	s.scheduleKick(connID)
	return nil
}

func (s *ServerSession) scheduleKick(connID int) {
	s.mu.Lock()
	s.kicks[connID] = time.Now().Add(s.kickGrace)
	s.mu.Unlock()
}

func (s *ServerSession) expireKicks(now time.Time) {
	var due []int

	s.mu.Lock()
	for id, deadline := range s.kicks {
		if !now.Before(deadline) {
			due = append(due, id)
			delete(s.kicks, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		_ = s.server.TryDisconnect(id)
	}
}

// Ping measures the round trip to connection connID. It must not be called
// from the goroutine handling events.
func (s *ServerSession) Ping(ctx context.Context, connID int) (time.Duration, error) {
	h, ok := s.Handler(connID)
	if !ok {
		return 0, gamenet.ErrUnknownConnection
	}
	return ping(ctx, h)
}

// IdleConnections returns the connections without user traffic for longer
// than maxIdle, sorted by id.
func (s *ServerSession) IdleConnections(maxIdle time.Duration) []int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	var idle []int
	for id, h := range s.handlers {
		if h.LastUserActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	sort.Ints(idle)
	return idle
}
