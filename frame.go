package gamenet

import (
	"io"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the size of the little-endian length prefix of every frame.
	HeaderSize = 2
	// MaxFrameSize is the largest frame the two-byte header can describe.
	MaxFrameSize = math.MaxUint16 + HeaderSize
)

// frame is a reusable buffer holding one length-prefixed message.
// It always belongs to the free list it was created for.
type frame struct {
	buf  []byte
	n    int // payload length
	home chan *frame

	// lease is odd while a consumer holds the frame.
	lease atomic.Uint64
}

func newFrame(maxMessageSize int, home chan *frame) *frame {
	return &frame{buf: make([]byte, maxMessageSize), home: home}
}

// maxPayload is the largest payload that fits the frame.
func (f *frame) maxPayload() int {
	return len(f.buf) - HeaderSize
}

// payload returns the message bytes without the header.
func (f *frame) payload() []byte {
	return f.buf[HeaderSize : HeaderSize+f.n]
}

// bytes returns the encoded frame, header included.
func (f *frame) bytes() []byte {
	return f.buf[:HeaderSize+f.n]
}

// fill encodes payload into the frame.
func (f *frame) fill(payload []byte) error {
	if len(payload) > f.maxPayload() {
		return errors.Wrapf(ErrMessageTooLarge, "%d > %d bytes", len(payload), f.maxPayload())
	}
	putHeader(f.buf, len(payload))
	f.n = copy(f.buf[HeaderSize:], payload)
	return nil
}

// readFrom reads one frame: the header, then exactly the announced payload.
func (f *frame) readFrom(r io.Reader) error {
	if _, err := io.ReadFull(r, f.buf[:HeaderSize]); err != nil {
		return err
	}
	n := header(f.buf)
	if n > f.maxPayload() {
		return errors.Wrapf(ErrMessageTooLarge, "peer announced %d > %d bytes", n, f.maxPayload())
	}
	if _, err := io.ReadFull(r, f.buf[HeaderSize:HeaderSize+n]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	f.n = n
	return nil
}

// hold marks the frame as held by a consumer and returns the lease token.
func (f *frame) hold() uint64 {
	return f.lease.Add(1)
}

// release returns the frame to its free list once per lease. Stale or
// repeated releases are ignored.
func (f *frame) release(lease uint64) {
	if !f.lease.CompareAndSwap(lease, lease+1) {
		return
	}
	select {
	case f.home <- f:
	default:
	}
}

func putHeader(b []byte, n int) {
	b[0] = byte(n)
	b[1] = byte(n >> 8)
}

func header(b []byte) int {
	return int(b[0]) | int(b[1])<<8
}

// fillFreeList tops up a free list with new frames until it is full.
func fillFreeList(list chan *frame, maxMessageSize int) {
	for len(list) < cap(list) {
		select {
		case list <- newFrame(maxMessageSize, list):
		default:
			return
		}
	}
}
