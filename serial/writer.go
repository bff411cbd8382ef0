package serial

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 and 1970-01-01.
const ticksAtUnixEpoch = 621355968000000000

// Writer encodes values into a fixed-capacity buffer.
// Writing past the capacity fails with ErrOutOfRange and leaves the position unchanged.
type Writer struct {
	buf      []byte
	pos      int
	registry *Registry
}

// NewWriter creates a writer with the given capacity. The registry is used by
// Write to encode registered types and may be nil for primitive-only use.
func NewWriter(r *Registry, capacity int) *Writer {
	return &Writer{buf: make([]byte, capacity), registry: r}
}

// NewWriterBuffer creates a writer over buf's full capacity.
func NewWriterBuffer(r *Registry, buf []byte) *Writer {
	return &Writer{buf: buf[:cap(buf)], registry: r}
}

// Reset rewinds the writer to position zero.
func (w *Writer) Reset() {
	w.pos = 0
}

// Registry returns the registry the writer encodes with.
func (w *Writer) Registry() *Registry {
	return w.registry
}

// Position returns the number of bytes written.
func (w *Writer) Position() int {
	return w.pos
}

// Cap returns the writer capacity.
func (w *Writer) Cap() int {
	return len(w.buf)
}

// Bytes returns the written bytes. The slice aliases the writer buffer and is
// only valid until the writer is reset or returned to its pool.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

func (w *Writer) ensure(n int) error {
	if w.pos+n > len(w.buf) {
		return errors.Wrapf(ErrOutOfRange, "write %d bytes at %d (capacity %d)", n, w.pos, len(w.buf))
	}
	return nil
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(v byte) error {
	if err := w.ensure(1); err != nil {
		return err
	}
	w.buf[w.pos] = v
	w.pos++
	return nil
}

// WriteBool writes a boolean as 0x00 or 0x01.
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(v int8) error {
	return w.WriteByte(byte(v))
}

// WriteUint16 writes v in little-endian order.
func (w *Writer) WriteUint16(v uint16) error {
	if err := w.ensure(2); err != nil {
		return err
	}
	w.buf[w.pos] = byte(v)
	w.buf[w.pos+1] = byte(v >> 8)
	w.pos += 2
	return nil
}

// WriteInt16 writes v in little-endian order.
func (w *Writer) WriteInt16(v int16) error {
	return w.WriteUint16(uint16(v))
}

// WriteUint32 writes v in little-endian order.
func (w *Writer) WriteUint32(v uint32) error {
	if err := w.ensure(4); err != nil {
		return err
	}
	w.buf[w.pos] = byte(v)
	w.buf[w.pos+1] = byte(v >> 8)
	w.buf[w.pos+2] = byte(v >> 16)
	w.buf[w.pos+3] = byte(v >> 24)
	w.pos += 4
	return nil
}

// WriteInt32 writes v in little-endian order.
func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

// WriteUint64 writes v in little-endian order.
func (w *Writer) WriteUint64(v uint64) error {
	if err := w.ensure(8); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		w.buf[w.pos+i] = byte(v >> (8 * i))
	}
	w.pos += 8
	return nil
}

// WriteInt64 writes v in little-endian order.
func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

// WriteFloat32 writes the IEEE 754 bits of v.
func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes the IEEE 754 bits of v.
func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// WriteDecimal writes the low then the high half of v.
func (w *Writer) WriteDecimal(v Decimal) error {
	if err := w.ensure(16); err != nil {
		return err
	}
	_ = w.WriteUint64(v.Lo)
	return w.WriteUint64(v.Hi)
}

// WriteString writes a non-null string. The empty string is encoded as a
// single 0x01 byte.
func (w *Writer) WriteString(v string) error {
	if len(v) > MaxStringLength {
		return errors.Wrapf(ErrStringTooLong, "%d > %d bytes", len(v), MaxStringLength)
	}
	if !utf8.ValidString(v) {
		return ErrInvalidString
	}
	if err := w.ensure(1 + len(v)); err != nil {
		return err
	}
	w.buf[w.pos] = byte(len(v) + 1)
	w.pos++
	w.pos += copy(w.buf[w.pos:], v)
	return nil
}

// WriteNullableString writes v, encoding nil as a single 0x00 byte.
func (w *Writer) WriteNullableString(v *string) error {
	if v == nil {
		return w.WriteByte(0)
	}
	return w.WriteString(*v)
}

// WriteTime writes t as 100ns ticks since 0001-01-01 UTC.
func (w *Writer) WriteTime(t time.Time) error {
	ticks := (t.Unix()+ticksAtUnixEpoch/1e7)*1e7 + int64(t.Nanosecond()/100)
	return w.WriteInt64(ticks)
}

// WriteDuration writes d as 100ns ticks.
func (w *Writer) WriteDuration(d time.Duration) error {
	return w.WriteInt64(int64(d / 100))
}

// WriteUUID writes id in GUID byte order: the first three groups
// little-endian, the last eight bytes as is.
func (w *Writer) WriteUUID(id uuid.UUID) error {
	guid := swapGUID(id)
	return w.WriteRaw(guid[:])
}

// swapGUID converts between RFC 4122 and GUID byte order. It is its own inverse.
func swapGUID(id uuid.UUID) uuid.UUID {
	id[0], id[1], id[2], id[3] = id[3], id[2], id[1], id[0]
	id[4], id[5] = id[5], id[4]
	id[6], id[7] = id[7], id[6]
	return id
}

// WriteChar writes c as a UTF-16 code unit.
func (w *Writer) WriteChar(c Char) error {
	return w.WriteUint16(uint16(c))
}

// WriteVector2 writes the components of v in order.
func (w *Writer) WriteVector2(v Vector2) error {
	if err := w.ensure(8); err != nil {
		return err
	}
	_ = w.WriteFloat32(v.X)
	return w.WriteFloat32(v.Y)
}

// WriteVector3 writes the components of v in order.
func (w *Writer) WriteVector3(v Vector3) error {
	if err := w.ensure(12); err != nil {
		return err
	}
	_ = w.WriteFloat32(v.X)
	_ = w.WriteFloat32(v.Y)
	return w.WriteFloat32(v.Z)
}

// WriteVector4 writes the components of v in order.
func (w *Writer) WriteVector4(v Vector4) error {
	if err := w.ensure(16); err != nil {
		return err
	}
	_ = w.WriteFloat32(v.X)
	_ = w.WriteFloat32(v.Y)
	_ = w.WriteFloat32(v.Z)
	return w.WriteFloat32(v.W)
}

// WriteRaw copies b into the buffer without a length prefix.
func (w *Writer) WriteRaw(b []byte) error {
	if err := w.ensure(len(b)); err != nil {
		return err
	}
	w.pos += copy(w.buf[w.pos:], b)
	return nil
}

// WriteSegment writes b prefixed with its two-byte length.
func (w *Writer) WriteSegment(b []byte) error {
	if len(b) > MaxCount {
		return errors.Wrapf(ErrCountTooLarge, "segment of %d bytes", len(b))
	}
	if err := w.ensure(2 + len(b)); err != nil {
		return err
	}
	_ = w.WriteUint16(uint16(len(b)))
	return w.WriteRaw(b)
}

// WriteCount writes a collection count.
func (w *Writer) WriteCount(n int) error {
	if n < 0 || n > MaxCount {
		return errors.Wrapf(ErrCountTooLarge, "count %d", n)
	}
	return w.WriteUint16(uint16(n))
}
