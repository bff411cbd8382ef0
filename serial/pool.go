package serial

import "sync"

// WriterPool hands out writers of a fixed capacity bound to one registry.
type WriterPool struct {
	registry *Registry
	capacity int
	pool     sync.Pool
}

// NewWriterPool creates a pool of writers with the given capacity.
func NewWriterPool(r *Registry, capacity int) *WriterPool {
	p := &WriterPool{registry: r, capacity: capacity}
	p.pool.New = func() any {
		return NewWriter(r, capacity)
	}
	return p
}

// Registry returns the registry the pooled writers encode with.
func (p *WriterPool) Registry() *Registry {
	return p.registry
}

// Capacity returns the buffer size of every pooled writer.
func (p *WriterPool) Capacity() int {
	return p.capacity
}

// Get returns a writer rewound to position zero.
func (p *WriterPool) Get() *Writer {
	w := p.pool.Get().(*Writer)
	w.Reset()
	return w
}

// Put returns w to the pool. Bytes previously obtained from w become invalid.
func (p *WriterPool) Put(w *Writer) {
	if w == nil || w.Cap() != p.capacity {
		return
	}
	p.pool.Put(w)
}

// Marshal encodes v with a pooled writer and returns a copy of the bytes.
func Marshal[T any](p *WriterPool, v T) ([]byte, error) {
	w := p.Get()
	defer p.Put(w)

	if err := Write(w, v); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.Bytes()...), nil
}

// Unmarshal decodes a T from data. Trailing bytes are ignored.
func Unmarshal[T any](r *Registry, data []byte) (T, error) {
	rd := r.GetReader(data)
	defer r.PutReader(rd)
	return Read[T](rd)
}
