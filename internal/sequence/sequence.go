// Package sequence issues bounded, wrapping identifiers for connections and
// message correlation.
package sequence

import "sync/atomic"

// Generator hands out ids in the range [1, max]. After max it wraps back to 1,
// so an id is only reused once the full cycle has been issued. Zero is never
// returned and can be used as "no id".
type Generator struct {
	max  uint64
	last atomic.Uint64
}

// New returns a generator that wraps after max. A max of zero is treated as one.
func New(max uint64) *Generator {
	if max == 0 {
		max = 1
	}
	return &Generator{max: max}
}

// Next returns the next id.
func (g *Generator) Next() uint64 {
	for {
		last := g.last.Load()
		next := last + 1
		if next > g.max {
			next = 1
		}
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Reset restarts the sequence so the next id is 1.
func (g *Generator) Reset() {
	g.last.Store(0)
}

// Max returns the largest id the generator issues.
func (g *Generator) Max() uint64 {
	return g.max
}
