package serial

import (
	"reflect"

	"github.com/pkg/errors"
)

// WriteSlice writes the element count followed by every element of s.
func WriteSlice[T any](w *Writer, s []T) error {
	h, err := lookup[T](w.registry)
	if err != nil {
		return err
	}
	if err := w.WriteCount(len(s)); err != nil {
		return err
	}
	for _, v := range s {
		if err := h.encode(w, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadSlice reads a count-prefixed sequence. An empty sequence decodes as a
// non-nil empty slice.
func ReadSlice[T any](r *Reader) ([]T, error) {
	h, err := lookup[T](r.registry)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	s := make([]T, 0, min(n, r.Remaining()))
	for i := 0; i < n; i++ {
		v, err := h.decode(r)
		if err != nil {
			return nil, err
		}
		s = append(s, v)
	}
	return s, nil
}

// WriteMap writes the entry count followed by each key and value.
// Iteration order follows the map and is not stable.
func WriteMap[K comparable, V any](w *Writer, m map[K]V) error {
	kh, err := lookup[K](w.registry)
	if err != nil {
		return err
	}
	vh, err := lookup[V](w.registry)
	if err != nil {
		return err
	}
	if err := w.WriteCount(len(m)); err != nil {
		return err
	}
	for k, v := range m {
		if err := kh.encode(w, k); err != nil {
			return err
		}
		if err := vh.encode(w, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadMap reads a count-prefixed mapping. Duplicate keys keep the last value.
func ReadMap[K comparable, V any](r *Reader) (map[K]V, error) {
	kh, err := lookup[K](r.registry)
	if err != nil {
		return nil, err
	}
	vh, err := lookup[V](r.registry)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	m := make(map[K]V, min(n, r.Remaining()))
	for i := 0; i < n; i++ {
		k, err := kh.decode(r)
		if err != nil {
			return nil, err
		}
		v, err := vh.decode(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// requireElements returns the first failing element check, wrapped with the
// composite being registered.
func requireElements(composite string, checks ...func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return errors.Wrapf(err, "register %s", composite)
		}
	}
	return nil
}

func registered[T any](r *Registry) func() error {
	return func() error {
		_, err := lookup[T](r)
		return err
	}
}

// RegisterSlice registers []T. T must already be registered.
func RegisterSlice[T any](r *Registry) error {
	if err := requireElements(reflect.TypeFor[[]T]().String(), registered[T](r)); err != nil {
		return err
	}
	return Register[[]T](r, WriteSlice[T], ReadSlice[T])
}

// RegisterMap registers map[K]V. K and V must already be registered.
func RegisterMap[K comparable, V any](r *Registry) error {
	if err := requireElements(reflect.TypeFor[map[K]V]().String(), registered[K](r), registered[V](r)); err != nil {
		return err
	}
	return Register[map[K]V](r, WriteMap[K, V], ReadMap[K, V])
}

// RegisterTuple1 registers Tuple1[T1].
func RegisterTuple1[T1 any](r *Registry) error {
	if err := requireElements(reflect.TypeFor[Tuple1[T1]]().String(), registered[T1](r)); err != nil {
		return err
	}
	enc := func(w *Writer, t Tuple1[T1]) error {
		return Write(w, t.V1)
	}
	dec := func(rd *Reader) (t Tuple1[T1], err error) {
		t.V1, err = Read[T1](rd)
		return t, err
	}
	return Register[Tuple1[T1]](r, enc, dec)
}

// RegisterTuple2 registers Tuple2[T1, T2].
func RegisterTuple2[T1, T2 any](r *Registry) error {
	if err := requireElements(reflect.TypeFor[Tuple2[T1, T2]]().String(), registered[T1](r), registered[T2](r)); err != nil {
		return err
	}
	enc := func(w *Writer, t Tuple2[T1, T2]) error {
		if err := Write(w, t.V1); err != nil {
			return err
		}
		return Write(w, t.V2)
	}
	dec := func(rd *Reader) (t Tuple2[T1, T2], err error) {
		if t.V1, err = Read[T1](rd); err != nil {
			return t, err
		}
		t.V2, err = Read[T2](rd)
		return t, err
	}
	return Register[Tuple2[T1, T2]](r, enc, dec)
}

// RegisterTuple3 registers Tuple3[T1, T2, T3].
func RegisterTuple3[T1, T2, T3 any](r *Registry) error {
	err := requireElements(reflect.TypeFor[Tuple3[T1, T2, T3]]().String(),
		registered[T1](r), registered[T2](r), registered[T3](r))
	if err != nil {
		return err
	}
	enc := func(w *Writer, t Tuple3[T1, T2, T3]) error {
		if err := Write(w, t.V1); err != nil {
			return err
		}
		if err := Write(w, t.V2); err != nil {
			return err
		}
		return Write(w, t.V3)
	}
	dec := func(rd *Reader) (t Tuple3[T1, T2, T3], err error) {
		if t.V1, err = Read[T1](rd); err != nil {
			return t, err
		}
		if t.V2, err = Read[T2](rd); err != nil {
			return t, err
		}
		t.V3, err = Read[T3](rd)
		return t, err
	}
	return Register[Tuple3[T1, T2, T3]](r, enc, dec)
}

// RegisterTuple4 registers Tuple4[T1, T2, T3, T4].
func RegisterTuple4[T1, T2, T3, T4 any](r *Registry) error {
	err := requireElements(reflect.TypeFor[Tuple4[T1, T2, T3, T4]]().String(),
		registered[T1](r), registered[T2](r), registered[T3](r), registered[T4](r))
	if err != nil {
		return err
	}
	enc := func(w *Writer, t Tuple4[T1, T2, T3, T4]) error {
		if err := Write(w, t.V1); err != nil {
			return err
		}
		if err := Write(w, t.V2); err != nil {
			return err
		}
		if err := Write(w, t.V3); err != nil {
			return err
		}
		return Write(w, t.V4)
	}
	dec := func(rd *Reader) (t Tuple4[T1, T2, T3, T4], err error) {
		if t.V1, err = Read[T1](rd); err != nil {
			return t, err
		}
		if t.V2, err = Read[T2](rd); err != nil {
			return t, err
		}
		if t.V3, err = Read[T3](rd); err != nil {
			return t, err
		}
		t.V4, err = Read[T4](rd)
		return t, err
	}
	return Register[Tuple4[T1, T2, T3, T4]](r, enc, dec)
}
