package serial

// MaxStringLength is the longest UTF-8 string, in bytes, that fits the
// one-byte length prefix.
const MaxStringLength = 254

// MaxCount is the largest element count a sequence or mapping can carry.
const MaxCount = 1<<16 - 1

// Decimal is an opaque 128-bit decimal value. It is transported bit for bit
// and never interpreted by this package.
type Decimal struct {
	Lo uint64
	Hi uint64
}

// Vector2 is a two-component single precision vector.
type Vector2 struct {
	X, Y float32
}

// Vector3 is a three-component single precision vector.
type Vector3 struct {
	X, Y, Z float32
}

// Vector4 is a four-component single precision vector.
type Vector4 struct {
	X, Y, Z, W float32
}

// Char is a single UTF-16 code unit, encoded as two little-endian bytes.
type Char uint16

// Tuple1 is a single-element tuple.
type Tuple1[T1 any] struct {
	V1 T1
}

// Tuple2 is a fixed-arity pair. Tuples are encoded as their elements in order,
// without a count.
type Tuple2[T1, T2 any] struct {
	V1 T1
	V2 T2
}

// Tuple3 is a fixed-arity triple.
type Tuple3[T1, T2, T3 any] struct {
	V1 T1
	V2 T2
	V3 T3
}

// Tuple4 is a fixed-arity quadruple.
type Tuple4[T1, T2, T3, T4 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
}
