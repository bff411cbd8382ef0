package serial

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Reader decodes values from a byte slice.
// Reading past the end fails with ErrOutOfRange and leaves the position unchanged.
type Reader struct {
	buf      []byte
	pos      int
	registry *Registry
}

// NewReader creates a reader over b. The registry is used by Read and may be nil.
func NewReader(r *Registry, b []byte) *Reader {
	return &Reader{buf: b, registry: r}
}

// Reset points the reader at b and rewinds it.
func (r *Reader) Reset(b []byte) {
	r.buf = b
	r.pos = 0
}

// Registry returns the registry the reader decodes with.
func (r *Reader) Registry() *Registry {
	return r.registry
}

// Len returns the total length of the underlying data.
func (r *Reader) Len() int {
	return len(r.buf)
}

// Position returns the read position.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// EOF reports whether every byte has been consumed.
func (r *Reader) EOF() bool {
	return r.pos >= len(r.buf)
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return errors.Wrapf(ErrOutOfRange, "read %d bytes at %d (length %d)", n, r.pos, len(r.buf))
	}
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadBool reads a boolean. Only 0x01 decodes as true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadByte()
	return v == 1, err
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadByte()
	return int8(v), err
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos]) | uint16(r.buf[r.pos+1])<<8
	r.pos += 2
	return v, nil
}

// ReadInt16 reads a little-endian int16.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	b := r.buf[r.pos : r.pos+4]
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	r.pos += 4
	return v, nil
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(r.buf[r.pos+i]) << (8 * i)
	}
	r.pos += 8
	return v, nil
}

// ReadInt64 reads a little-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE 754 single.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadDecimal reads a 128-bit decimal.
func (r *Reader) ReadDecimal() (Decimal, error) {
	if err := r.need(16); err != nil {
		return Decimal{}, err
	}
	lo, _ := r.ReadUint64()
	hi, _ := r.ReadUint64()
	return Decimal{Lo: lo, Hi: hi}, nil
}

// ReadString reads a string. A null string decodes as "".
func (r *Reader) ReadString() (string, error) {
	s, err := r.ReadNullableString()
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

// ReadNullableString reads a string, returning nil for a null string.
func (r *Reader) ReadNullableString() (*string, error) {
	start := r.pos
	size, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data, err := r.ReadRaw(int(size) - 1)
	if err != nil {
		r.pos = start
		return nil, err
	}
	if !utf8.Valid(data) {
		r.pos = start
		return nil, ErrInvalidString
	}
	s := string(data)
	return &s, nil
}

// ReadTime reads a tick count written by WriteTime. The result is in UTC.
func (r *Reader) ReadTime() (time.Time, error) {
	ticks, err := r.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	sec := ticks/1e7 - ticksAtUnixEpoch/1e7
	nsec := (ticks % 1e7) * 100
	return time.Unix(sec, nsec).UTC(), nil
}

// ReadDuration reads a tick count written by WriteDuration.
func (r *Reader) ReadDuration() (time.Duration, error) {
	ticks, err := r.ReadInt64()
	return time.Duration(ticks) * 100, err
}

// ReadUUID reads an id written by WriteUUID.
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	var id uuid.UUID
	b, err := r.ReadRaw(len(id))
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return swapGUID(id), nil
}

// ReadChar reads a UTF-16 code unit.
func (r *Reader) ReadChar() (Char, error) {
	v, err := r.ReadUint16()
	return Char(v), err
}

// ReadVector2 reads two float32 components.
func (r *Reader) ReadVector2() (Vector2, error) {
	if err := r.need(8); err != nil {
		return Vector2{}, err
	}
	x, _ := r.ReadFloat32()
	y, _ := r.ReadFloat32()
	return Vector2{X: x, Y: y}, nil
}

// ReadVector3 reads three float32 components.
func (r *Reader) ReadVector3() (Vector3, error) {
	if err := r.need(12); err != nil {
		return Vector3{}, err
	}
	x, _ := r.ReadFloat32()
	y, _ := r.ReadFloat32()
	z, _ := r.ReadFloat32()
	return Vector3{X: x, Y: y, Z: z}, nil
}

// ReadVector4 reads four float32 components.
func (r *Reader) ReadVector4() (Vector4, error) {
	if err := r.need(16); err != nil {
		return Vector4{}, err
	}
	x, _ := r.ReadFloat32()
	y, _ := r.ReadFloat32()
	z, _ := r.ReadFloat32()
	w, _ := r.ReadFloat32()
	return Vector4{X: x, Y: y, Z: z, W: w}, nil
}

// ReadRaw returns the next n bytes. The slice aliases the reader's data.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadSegment reads a two-byte length followed by that many bytes.
// The slice aliases the reader's data.
func (r *Reader) ReadSegment() ([]byte, error) {
	start := r.pos
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	b, err := r.ReadRaw(int(n))
	if err != nil {
		r.pos = start
		return nil, err
	}
	return b, nil
}

// ReadToEnd returns every unread byte.
func (r *Reader) ReadToEnd() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// ReadCount reads a collection count.
func (r *Reader) ReadCount() (int, error) {
	n, err := r.ReadUint16()
	return int(n), err
}
