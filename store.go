package nvstore

import (
	"context"
	"fmt"
)

// DefaultPartition is the label of the partition used when none is given.
const DefaultPartition = ""

// MaxNameLen is the longest namespace or key name a driver has to accept.
const MaxNameLen = 15

// Mode is the access mode a namespace is opened with.
type Mode uint8

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Handle identifies an open namespace inside a driver. The zero Handle is
// never returned by a successful Open.
type Handle uint32

// Kind is the storage type of a value. Entries are typed: reading a key with
// a kind other than the one it was written with fails.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindU64
	KindI64
	KindString
	KindBlob
)

var kindNames = [...]string{
	KindU8:     "uint8",
	KindI8:     "int8",
	KindU16:    "uint16",
	KindI16:    "int16",
	KindU32:    "uint32",
	KindI32:    "int32",
	KindU64:    "uint64",
	KindI64:    "int64",
	KindString: "string",
	KindBlob:   "blob",
}

func (k Kind) String() string {
	if k == 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Width returns the encoded size of a fixed-width kind in bytes and 0 for
// strings and blobs.
func (k Kind) Width() int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32:
		return 4
	case KindU64, KindI64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether a fixed-width kind holds a two's complement value.
func (k Kind) Signed() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64:
		return true
	default:
		return false
	}
}

// ParseKind resolves a kind by its String name.
func ParseKind(s string) (Kind, error) {
	for k := KindU8; k <= KindBlob; k++ {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q: %w", s, ErrTypeMismatch)
}

// Driver is the flash storage driver the typed layer is built on.
//
// Scalars travel as the raw bits of their kind, zero-extended to 64 bits.
// GetString and GetBlob with a nil buf report the stored length; with a
// buffer shorter than that they fail with ErrInvalidLength. The length of a
// stored string includes its terminating NUL.
//
// Implementations must be safe for concurrent use by different handles.
type Driver interface {
	Init(ctx context.Context, label string) error
	Erase(ctx context.Context, label string) error

	Open(ctx context.Context, label, namespace string, mode Mode) (Handle, error)
	Close(h Handle)
	Commit(ctx context.Context, h Handle) error

	GetScalar(ctx context.Context, h Handle, kind Kind, key string) (uint64, error)
	SetScalar(ctx context.Context, h Handle, kind Kind, key string, value uint64) error

	GetString(ctx context.Context, h Handle, key string, buf []byte) (int, error)
	SetString(ctx context.Context, h Handle, key string, value string) error

	GetBlob(ctx context.Context, h Handle, key string, buf []byte) (int, error)
	SetBlob(ctx context.Context, h Handle, key string, value []byte) error
}

// ValidName checks a namespace or key name against the limits every driver
// shares.
func ValidName(name string) error {
	if name == "" || len(name) > MaxNameLen {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// CopyValue implements the GetString and GetBlob buffer contract for a
// driver holding data: a nil buf is a size query, a short buf is
// ErrInvalidLength. With terminate set the copy is NUL-terminated and the
// reported length counts the terminator.
func CopyValue(buf, data []byte, terminate bool) (int, error) {
	need := len(data)
	if terminate {
		need++
	}
	if buf == nil {
		return need, nil
	}
	if len(buf) < need {
		return need, ErrInvalidLength
	}
	copy(buf, data)
	if terminate {
		buf[len(data)] = 0
	}
	return need, nil
}
