package nvstore

// Scalar is the closed set of fixed-width values a Stream reads and writes.
type Scalar interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | bool
}

// codec maps a Go value onto the raw bits a driver stores for its kind.
type codec[T Scalar] struct {
	kind   Kind
	encode func(T) uint64
	decode func(uint64) T
}

// Booleans are stored as the printable characters '0' and '1' in an int8
// slot, so other firmware can read them as chars.
const (
	boolFalse = '0'
	boolTrue  = '1'
)

var (
	codecU8  = codec[uint8]{KindU8, func(v uint8) uint64 { return uint64(v) }, func(r uint64) uint8 { return uint8(r) }}
	codecI8  = codec[int8]{KindI8, func(v int8) uint64 { return uint64(uint8(v)) }, func(r uint64) int8 { return int8(r) }}
	codecU16 = codec[uint16]{KindU16, func(v uint16) uint64 { return uint64(v) }, func(r uint64) uint16 { return uint16(r) }}
	codecI16 = codec[int16]{KindI16, func(v int16) uint64 { return uint64(uint16(v)) }, func(r uint64) int16 { return int16(r) }}
	codecU32 = codec[uint32]{KindU32, func(v uint32) uint64 { return uint64(v) }, func(r uint64) uint32 { return uint32(r) }}
	codecI32 = codec[int32]{KindI32, func(v int32) uint64 { return uint64(uint32(v)) }, func(r uint64) int32 { return int32(r) }}
	codecU64 = codec[uint64]{KindU64, func(v uint64) uint64 { return v }, func(r uint64) uint64 { return r }}
	codecI64 = codec[int64]{KindI64, func(v int64) uint64 { return uint64(v) }, func(r uint64) int64 { return int64(r) }}

	codecBool = codec[bool]{
		kind: KindI8,
		encode: func(v bool) uint64 {
			if v {
				return boolTrue
			}
			return boolFalse
		},
		decode: func(r uint64) bool { return uint8(r) != boolFalse },
	}
)

func codecFor[T Scalar]() codec[T] {
	var zero T
	var c any
	switch any(zero).(type) {
	case uint8:
		c = codecU8
	case int8:
		c = codecI8
	case uint16:
		c = codecU16
	case int16:
		c = codecI16
	case uint32:
		c = codecU32
	case int32:
		c = codecI32
	case uint64:
		c = codecU64
	case int64:
		c = codecI64
	case bool:
		c = codecBool
	}
	return c.(codec[T])
}

// KindOf returns the storage kind a Scalar type is written with.
func KindOf[T Scalar]() Kind {
	return codecFor[T]().kind
}
