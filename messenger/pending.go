package messenger

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/gamenet/serial"
)

// DefaultTimeout is used when a wait is given a non-positive timeout.
const DefaultTimeout = 5 * time.Second

// Message is an inbound simple message handed to a listener.
type Message[T any] struct {
	// Handler is the session the message arrived on; respond through it.
	Handler *Handler
	// ID is the correlation id to pass to Respond.
	ID   uint16
	Data T
}

// Receipt identifies a sent message. The zero Receipt is returned when a
// send fails; waiting on it yields ErrInactive immediately.
type Receipt struct {
	handler *Handler
	ID      uint16
}

// Response is the outcome of waiting for a reply. Err is ErrTimeout,
// ErrReset, ErrInactive, a *RemoteError from the peer or a decoding error.
type Response[T any] struct {
	RequestID uint16
	Data      T
	Err       error
}

// HasError reports whether the request failed.
func (r Response[T]) HasError() bool {
	return r.Err != nil
}

// Pending is a registered wait for the response to one request. It is
// resolved exactly once: by the matching response, by its deadline, or by
// the handler being reset.
type Pending[T any] struct {
	handler *Handler
	entry   *pendingEntry
	id      uint16
	timeout time.Duration
	ch      chan Response[T]

	result *Response[T]
}

// Expect registers a wait for the response to receipt. Register it before
// the response can be unpacked: either from a goroutine other than the one
// calling Unpack, or through Request. If the session is no longer active the
// wait resolves at once with ErrInactive.
func Expect[T any](receipt Receipt, timeout time.Duration) *Pending[T] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Pending[T]{
		handler: receipt.handler,
		id:      receipt.ID,
		timeout: timeout,
		ch:      make(chan Response[T], 1),
	}

	if receipt.handler == nil {
		p.ch <- Response[T]{Err: ErrInactive}
		return p
	}
	if !receipt.handler.IsActive() {
		receipt.handler.logger.Warn("wait on inactive session", "id", receipt.ID)
		p.ch <- Response[T]{RequestID: receipt.ID, Err: ErrInactive}
		return p
	}
	p.register()
	return p
}

func newPending[T any](h *Handler, timeout time.Duration) *Pending[T] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pending[T]{handler: h, timeout: timeout, ch: make(chan Response[T], 1)}
}

func (p *Pending[T]) register() {
	cfg, err := configFor[T](p.handler.registry)
	if err != nil {
		p.ch <- Response[T]{RequestID: p.id, Err: err}
		return
	}
	p.entry = &pendingEntry{hash: cfg.Hash, resolve: p.resolve}
	p.handler.addPending(p.id, p.entry)
}

func (p *Pending[T]) resolve(rd *serial.Reader, err error) {
	rsp := Response[T]{RequestID: p.id, Err: err}
	if err == nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rsp.Err = errors.Errorf("messenger: panic decoding response: %v", r)
				}
			}()
			rsp.Data, rsp.Err = serial.Deserialize[T](p.handler.registry.types, rd)
		}()
	}
	p.ch <- rsp
}

// Wait blocks until the response arrives, the timeout elapses or ctx is
// done. It is not safe for concurrent use; later calls return the first
// result.
func (p *Pending[T]) Wait(ctx context.Context) Response[T] {
	if p.result != nil {
		return *p.result
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	var rsp Response[T]
	select {
	case rsp = <-p.ch:
	case <-timer.C:
		rsp = p.abandon(ErrTimeout)
	case <-ctx.Done():
		rsp = p.abandon(ctx.Err())
	}
	p.result = &rsp
	return rsp
}

// abandon withdraws the pending entry. If a resolver took it first, its
// result is already on the way and wins.
func (p *Pending[T]) abandon(err error) Response[T] {
	if p.entry != nil && p.handler.removePending(p.id, p.entry) {
		return Response[T]{RequestID: p.id, Err: err}
	}
	return <-p.ch
}

// WaitForResponse waits up to timeout for the response of type T to receipt.
func WaitForResponse[T any](ctx context.Context, receipt Receipt, timeout time.Duration) Response[T] {
	return Expect[T](receipt, timeout).Wait(ctx)
}

// Request sends v and waits up to timeout for its response. The wait is
// registered before v is written.
func Request[TReq, TResp any](ctx context.Context, h *Handler, v TReq, timeout time.Duration) Response[TResp] {
	if _, err := configFor[TResp](h.registry); err != nil {
		return Response[TResp]{Err: err}
	}
	p := newPending[TResp](h, timeout)

	_, err := send(h, v, func(id uint16) {
		p.id = id
		p.register()
	})
	if err != nil {
		if p.entry != nil {
			h.removePending(p.id, p.entry)
		}
		return Response[TResp]{RequestID: p.id, Err: err}
	}
	return p.Wait(ctx)
}
