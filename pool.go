package gamenet

import (
	"context"
	"net"
	"sync"

	"github.com/Zereker/gamenet/internal/sequence"
)

// connPool is a fixed-size arena of connection slots. Slots are handed out
// round robin so a released slot is reused as late as possible.
type connPool struct {
	mu     sync.RWMutex
	slots  []*Conn
	next   int
	inUse  int
	active map[int]*Conn

	ids    *sequence.Generator
	opts   *options
	events *eventQueue
	logger Logger
}

func newConnPool(opts *options, events *eventQueue, logger Logger) *connPool {
	return &connPool{
		slots:  make([]*Conn, opts.maxConnections),
		active: make(map[int]*Conn, opts.maxConnections),
		ids:    sequence.New(uint64(opts.maxConnectionID)),
		opts:   opts,
		events: events,
		logger: logger,
	}
}

// acquire binds a free slot to raw. It reports false when every slot is in use.
func (p *connPool) acquire(ctx context.Context, raw *net.TCPConn) (*Conn, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse >= len(p.slots) {
		return nil, 0, false
	}

	var c *Conn
	for i := 0; i < len(p.slots); i++ {
		idx := (p.next + i) % len(p.slots)
		if p.slots[idx] == nil {
			p.slots[idx] = newConn(p.opts, p.events, p.logger)
		}
		if !p.slots[idx].inUse {
			c = p.slots[idx]
			p.next = (idx + 1) % len(p.slots)
			break
		}
	}

	c.inUse = true
	p.inUse++

	gen := c.assign(ctx, raw, p.nextID())
	p.active[c.id] = c
	return c, gen, true
}

// nextID skips ids still held by live connections after a wrap.
func (p *connPool) nextID() int {
	for {
		id := int(p.ids.Next())
		if _, taken := p.active[id]; !taken {
			return id
		}
	}
}

// withConn runs fn on the live connection id while holding the pool read
// lock, so the slot cannot be reassigned under fn.
func (p *connPool) withConn(id int, fn func(c *Conn) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.active[id]
	if !ok {
		return ErrUnknownConnection
	}
	return fn(c)
}

// lookup returns the live connection id and its current generation.
func (p *connPool) lookup(id int) (*Conn, uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.active[id]
	if !ok {
		return nil, 0, false
	}
	return c, c.generation, true
}

// deactivate ends generation gen of the slot: it cancels the connection
// context and closes the socket. Only the first caller for a generation gets
// true, along with the id and address that generation had.
func (p *connPool) deactivate(c *Conn, gen uint64) (int, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.generation != gen || !c.active.CompareAndSwap(true, false) {
		return 0, "", false
	}
	delete(p.active, c.id)
	c.cancel()
	_ = c.rawConn.Close()
	return c.id, c.addr, true
}

// release makes the slot available again. Call it once both loops of the
// slot have exited.
func (p *connPool) release(c *Conn, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.generation != gen || !c.inUse {
		return
	}
	c.recycle()
	c.inUse = false
	p.inUse--
}

type connRef struct {
	conn *Conn
	id   int
	gen  uint64
}

// snapshot returns the live connections with their generations.
func (p *connPool) snapshot() []connRef {
	p.mu.RLock()
	defer p.mu.RUnlock()

	refs := make([]connRef, 0, len(p.active))
	for _, c := range p.active {
		refs = append(refs, connRef{conn: c, id: c.id, gen: c.generation})
	}
	return refs
}

func (p *connPool) inUseCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inUse
}

func (p *connPool) activeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}

// reset restarts id allocation. Every slot must have been released.
func (p *connPool) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next = 0
	p.ids.Reset()
}
