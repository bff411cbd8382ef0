package serial

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EncodeFunc appends the canonical encoding of v to w.
type EncodeFunc[T any] func(w *Writer, v T) error

// DecodeFunc consumes exactly the bytes its paired EncodeFunc writes.
type DecodeFunc[T any] func(r *Reader) (T, error)

// Serializable is implemented by application types that encode themselves.
// Register them with RegisterCustom.
type Serializable interface {
	Serialize(w *Writer) error
	Deserialize(r *Reader) error
}

type handlers[T any] struct {
	encode EncodeFunc[T]
	decode DecodeFunc[T]
}

// Registry maps static Go types to their encode and decode functions.
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]any
	custom  []reflect.Type

	readers sync.Pool
}

// NewRegistry returns a registry with every built-in type registered:
// the sized integers, bool, float32, float64, string, *string, []byte,
// Char, Decimal, time.Time, time.Duration, uuid.UUID and the vector types.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[reflect.Type]any)}
	r.readers.New = func() any { return &Reader{registry: r} }
	registerBuiltins(r)
	return r
}

func registerBuiltins(r *Registry) {
	mustRegister(r, (*Writer).WriteByte, (*Reader).ReadByte)
	mustRegister(r, (*Writer).WriteInt8, (*Reader).ReadInt8)
	mustRegister(r, (*Writer).WriteBool, (*Reader).ReadBool)
	mustRegister(r, (*Writer).WriteUint16, (*Reader).ReadUint16)
	mustRegister(r, (*Writer).WriteInt16, (*Reader).ReadInt16)
	mustRegister(r, (*Writer).WriteChar, (*Reader).ReadChar)
	mustRegister(r, (*Writer).WriteUint32, (*Reader).ReadUint32)
	mustRegister(r, (*Writer).WriteInt32, (*Reader).ReadInt32)
	mustRegister(r, (*Writer).WriteUint64, (*Reader).ReadUint64)
	mustRegister(r, (*Writer).WriteInt64, (*Reader).ReadInt64)
	mustRegister(r, (*Writer).WriteFloat32, (*Reader).ReadFloat32)
	mustRegister(r, (*Writer).WriteFloat64, (*Reader).ReadFloat64)
	mustRegister(r, (*Writer).WriteDecimal, (*Reader).ReadDecimal)
	mustRegister(r, (*Writer).WriteString, (*Reader).ReadString)
	mustRegister(r, (*Writer).WriteNullableString, (*Reader).ReadNullableString)
	mustRegister[time.Time](r, (*Writer).WriteTime, (*Reader).ReadTime)
	mustRegister[time.Duration](r, (*Writer).WriteDuration, (*Reader).ReadDuration)
	mustRegister[uuid.UUID](r, (*Writer).WriteUUID, (*Reader).ReadUUID)
	mustRegister(r, (*Writer).WriteVector2, (*Reader).ReadVector2)
	mustRegister(r, (*Writer).WriteVector3, (*Reader).ReadVector3)
	mustRegister(r, (*Writer).WriteVector4, (*Reader).ReadVector4)
	mustRegister(r, (*Writer).WriteSegment, func(rd *Reader) ([]byte, error) {
		b, err := rd.ReadSegment()
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	})
}

func mustRegister[T any](r *Registry, enc func(*Writer, T) error, dec func(*Reader) (T, error)) {
	MustRegister[T](r, enc, dec)
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](r *Registry, enc EncodeFunc[T], dec DecodeFunc[T]) {
	if err := Register(r, enc, dec); err != nil {
		panic(err)
	}
}

// Register installs the handlers for T. Registering the same type twice
// returns ErrDuplicateType.
func Register[T any](r *Registry, enc EncodeFunc[T], dec DecodeFunc[T]) error {
	if enc == nil || dec == nil {
		return errors.Errorf("serial: nil handler for %s", reflect.TypeFor[T]())
	}

	t := reflect.TypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[t]; exists {
		return errors.Wrapf(ErrDuplicateType, "%s", t)
	}
	r.entries[t] = &handlers[T]{encode: enc, decode: dec}
	return nil
}

// RegisterCustom registers T through the Serializable methods of *T and
// records it as a custom type.
func RegisterCustom[T any, PT interface {
	*T
	Serializable
}](r *Registry) error {
	enc := func(w *Writer, v T) error {
		return PT(&v).Serialize(w)
	}
	dec := func(rd *Reader) (T, error) {
		var v T
		err := PT(&v).Deserialize(rd)
		return v, err
	}
	return r.addCustom(reflect.TypeFor[T](), func() error { return Register[T](r, enc, dec) })
}

// RegisterIfSerializable registers T as a custom type when *T implements
// Serializable. It reports whether T was registered.
func RegisterIfSerializable[T any](r *Registry) (bool, error) {
	if _, ok := any((*T)(nil)).(Serializable); !ok {
		return false, nil
	}
	enc := func(w *Writer, v T) error {
		return any(&v).(Serializable).Serialize(w)
	}
	dec := func(rd *Reader) (T, error) {
		var v T
		err := any(&v).(Serializable).Deserialize(rd)
		return v, err
	}
	err := r.addCustom(reflect.TypeFor[T](), func() error { return Register[T](r, enc, dec) })
	return err == nil, err
}

func (r *Registry) addCustom(t reflect.Type, register func() error) error {
	if err := register(); err != nil {
		return err
	}
	r.mu.Lock()
	r.custom = append(r.custom, t)
	r.mu.Unlock()
	return nil
}

// CustomTypes returns the types registered through RegisterCustom, in
// registration order.
func (r *Registry) CustomTypes() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]reflect.Type(nil), r.custom...)
}

// IsRegistered reports whether T has handlers.
func IsRegistered[T any](r *Registry) bool {
	_, err := lookup[T](r)
	return err == nil
}

func lookup[T any](r *Registry) (*handlers[T], error) {
	if r == nil {
		return nil, errors.Wrapf(ErrUnregisteredType, "%s (no registry)", reflect.TypeFor[T]())
	}

	t := reflect.TypeFor[T]()

	r.mu.RLock()
	entry, ok := r.entries[t]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrUnregisteredType, "%s", t)
	}
	return entry.(*handlers[T]), nil
}

// Write encodes v with the handlers registered in w's registry.
func Write[T any](w *Writer, v T) error {
	h, err := lookup[T](w.registry)
	if err != nil {
		return err
	}
	return h.encode(w, v)
}

// Read decodes a T with the handlers registered in r's registry.
func Read[T any](r *Reader) (T, error) {
	h, err := lookup[T](r.registry)
	if err != nil {
		var zero T
		return zero, err
	}
	return h.decode(r)
}

// GetReader returns a pooled reader over b. Return it with PutReader.
func (r *Registry) GetReader(b []byte) *Reader {
	rd := r.readers.Get().(*Reader)
	rd.Reset(b)
	return rd
}

// PutReader returns rd to the pool. rd must not be used afterwards.
func (r *Registry) PutReader(rd *Reader) {
	rd.Reset(nil)
	r.readers.Put(rd)
}

// Serialize encodes v into w using r, regardless of the registry w was
// created with.
func Serialize[T any](r *Registry, w *Writer, v T) error {
	h, err := lookup[T](r)
	if err != nil {
		return err
	}
	return h.encode(w, v)
}

// Deserialize decodes a T from rd using r.
func Deserialize[T any](r *Registry, rd *Reader) (T, error) {
	h, err := lookup[T](r)
	if err != nil {
		var zero T
		return zero, err
	}
	return h.decode(rd)
}
