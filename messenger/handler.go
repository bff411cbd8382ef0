package messenger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/gamenet"
	"github.com/Zereker/gamenet/internal/sequence"
	"github.com/Zereker/gamenet/serial"
)

// MaxCorrelationID is the largest correlation id before the generator wraps.
const MaxCorrelationID = 1<<16 - 1

// Sender is the transport side of a handler. *gamenet.Client satisfies it.
type Sender interface {
	Send(payload []byte) error
	IsActive() bool
}

type listener func(id uint16, rd *serial.Reader) error

type pendingEntry struct {
	hash    uint16
	resolve func(rd *serial.Reader, err error)
}

// Handler encodes outbound messages and demultiplexes inbound payloads for
// one session. Listeners run on the goroutine that calls Unpack.
type Handler struct {
	registry *Registry
	logger   gamenet.Logger
	ids      *sequence.Generator
	lastUser atomic.Int64

	mu        sync.Mutex
	sender    Sender
	listeners map[uint16]listener
	pending   map[uint16]*pendingEntry
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger of a handler.
func WithLogger(logger gamenet.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a handler writing to sender.
func NewHandler(reg *Registry, sender Sender, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:  reg,
		sender:    sender,
		ids:       sequence.New(MaxCorrelationID),
		listeners: make(map[uint16]listener),
		pending:   make(map[uint16]*pendingEntry),
	}
	for _, o := range opts {
		o(h)
	}
	h.logger = gamenet.WithComponent(h.logger, "messenger")
	h.touch()
	return h
}

// Registry returns the message registry of h.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// IsActive reports whether the underlying session can send.
func (h *Handler) IsActive() bool {
	h.mu.Lock()
	sender := h.sender
	h.mu.Unlock()
	return sender != nil && sender.IsActive()
}

// LastUserActivity returns when the last user message arrived, or when the
// handler was bound to its session if none has.
func (h *Handler) LastUserActivity() time.Time {
	return time.Unix(0, h.lastUser.Load())
}

func (h *Handler) touch() {
	h.lastUser.Store(time.Now().UnixNano())
}

// rebind points a reset handler at a new session.
func (h *Handler) rebind(sender Sender) {
	h.mu.Lock()
	h.sender = sender
	h.mu.Unlock()
	h.touch()
}

// SetListener installs fn as the listener for simple messages of type T,
// replacing any previous one.
func SetListener[T any](h *Handler, fn func(Message[T])) error {
	cfg, err := configFor[T](h.registry)
	if err != nil {
		return err
	}

	types := h.registry.types
	l := func(id uint16, rd *serial.Reader) error {
		v, err := serial.Deserialize[T](types, rd)
		if err != nil {
			return errors.Wrapf(err, "decode %s", cfg.Name)
		}
		fn(Message[T]{Handler: h, ID: id, Data: v})
		return nil
	}

	h.mu.Lock()
	h.listeners[cfg.Hash] = l
	h.mu.Unlock()
	return nil
}

// ClearListener removes the listener for T.
func ClearListener[T any](h *Handler) {
	cfg, err := configFor[T](h.registry)
	if err != nil {
		return
	}

	h.mu.Lock()
	delete(h.listeners, cfg.Hash)
	h.mu.Unlock()
}

// Send writes v as a simple message. On an inactive session it logs a
// warning and returns a zero Receipt with ErrInactive.
func Send[T any](h *Handler, v T) (Receipt, error) {
	return send(h, v, nil)
}

// send assigns the correlation id, calls before with it and then writes the
// message, so a response can never arrive ahead of its pending entry.
func send[T any](h *Handler, v T, before func(id uint16)) (Receipt, error) {
	cfg, err := configFor[T](h.registry)
	if err != nil {
		return Receipt{}, err
	}
	if !h.IsActive() {
		h.logger.Warn("send on inactive session", "message", cfg.Name)
		return Receipt{}, ErrInactive
	}

	id := uint16(h.ids.Next())
	if before != nil {
		before(id)
	}

	types := h.registry.types
	err = h.write(header{kind: KindSimple, hash: cfg.Hash, id: id}, func(w *serial.Writer) error {
		return serial.Serialize(types, w, v)
	})
	if err != nil {
		return Receipt{}, errors.Wrapf(err, "send %s", cfg.Name)
	}
	return Receipt{handler: h, ID: id}, nil
}

// Respond answers request id with v.
func Respond[T any](h *Handler, id uint16, v T) error {
	cfg, err := configFor[T](h.registry)
	if err != nil {
		return err
	}
	if !h.IsActive() {
		h.logger.Warn("respond on inactive session", "message", cfg.Name, "id", id)
		return ErrInactive
	}

	types := h.registry.types
	err = h.write(header{kind: KindResponse, hash: cfg.Hash, id: id}, func(w *serial.Writer) error {
		if err := w.WriteBool(false); err != nil {
			return err
		}
		return serial.Serialize(types, w, v)
	})
	return errors.Wrapf(err, "respond %s", cfg.Name)
}

// RespondError answers request id with an error message. The waiter receives
// a *RemoteError.
func RespondError[T any](h *Handler, id uint16, msg string) error {
	cfg, err := configFor[T](h.registry)
	if err != nil {
		return err
	}
	if !h.IsActive() {
		h.logger.Warn("respond on inactive session", "message", cfg.Name, "id", id)
		return ErrInactive
	}

	err = h.write(header{kind: KindResponse, hash: cfg.Hash, id: id}, func(w *serial.Writer) error {
		if err := w.WriteBool(true); err != nil {
			return err
		}
		return w.WriteString(msg)
	})
	return errors.Wrapf(err, "respond %s", cfg.Name)
}

func (h *Handler) write(hd header, body func(w *serial.Writer) error) error {
	w := h.registry.writers.Get()
	defer h.registry.writers.Put(w)

	if err := writeHeader(w, hd); err != nil {
		return err
	}
	if err := body(w); err != nil {
		return err
	}

	h.mu.Lock()
	sender := h.sender
	h.mu.Unlock()
	if sender == nil {
		return ErrInactive
	}
	return sender.Send(w.Bytes())
}

// Unpack demultiplexes one inbound payload. Malformed payloads, unknown
// messages and listener panics are logged and the payload is dropped; the
// error is returned for callers that want to count them.
func (h *Handler) Unpack(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("messenger: panic while unpacking: %v", r)
		}
		if err != nil {
			h.logger.Warn("dropped message", "size", len(payload), "error", err)
		}
	}()

	rd := h.registry.types.GetReader(payload)
	defer h.registry.types.PutReader(rd)

	hd, err := readHeader(rd)
	if err != nil {
		return err
	}

	cfg, known := h.registry.ConfigByHash(hd.hash)
	if known && cfg.IsUser {
		h.touch()
	}

	switch hd.kind {
	case KindSimple:
		if !known {
			return errors.Wrapf(ErrNotRegistered, "hash %#04x", hd.hash)
		}
		h.mu.Lock()
		l, ok := h.listeners[hd.hash]
		h.mu.Unlock()
		if !ok {
			return errors.Wrapf(ErrNoListener, "%s", cfg.Name)
		}
		return l(hd.id, rd)

	default:
		entry := h.takePending(hd.id)
		if entry == nil {
			return errors.Wrapf(ErrNoPending, "id %d", hd.id)
		}
		h.resolve(entry, hd, rd)
		return nil
	}
}

func (h *Handler) resolve(entry *pendingEntry, hd header, rd *serial.Reader) {
	if entry.hash != hd.hash {
		entry.resolve(nil, errors.Wrapf(ErrUnexpectedResponse, "hash %#04x", hd.hash))
		return
	}

	hasError, err := rd.ReadBool()
	if err != nil {
		entry.resolve(nil, errors.Wrap(err, "read error flag"))
		return
	}
	if !hasError {
		entry.resolve(rd, nil)
		return
	}

	msg, err := rd.ReadString()
	if err != nil {
		entry.resolve(nil, errors.Wrap(err, "read error message"))
		return
	}
	entry.resolve(nil, &RemoteError{Message: msg})
}

func (h *Handler) addPending(id uint16, entry *pendingEntry) {
	h.mu.Lock()
	prev := h.pending[id]
	h.pending[id] = entry
	h.mu.Unlock()

	if prev != nil {
		prev.resolve(nil, errors.Wrapf(ErrReset, "correlation id %d reused", id))
	}
}

func (h *Handler) takePending(id uint16) *pendingEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.pending[id]
	if !ok {
		return nil
	}
	delete(h.pending, id)
	return entry
}

// removePending deletes entry if it is still the one waiting on id.
func (h *Handler) removePending(id uint16, entry *pendingEntry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending[id] != entry {
		return false
	}
	delete(h.pending, id)
	return true
}

// PendingCount returns the number of requests awaiting a response.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// cancelPending resolves every waiting request with err.
func (h *Handler) cancelPending(err error) {
	h.mu.Lock()
	pending := h.pending
	h.pending = make(map[uint16]*pendingEntry)
	h.mu.Unlock()

	for _, entry := range pending {
		entry.resolve(nil, err)
	}
}

// Reset clears listeners and pending requests and restarts correlation ids.
// Waiters receive ErrReset.
func (h *Handler) Reset() {
	h.mu.Lock()
	h.listeners = make(map[uint16]listener)
	h.mu.Unlock()

	h.cancelPending(ErrReset)
	h.ids.Reset()
}
