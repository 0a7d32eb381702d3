package btree

import (
	"bytes"
	"fmt"
	"math"

	"github.com/treelinedb/treeline/internal/alias/bx"
)

// Datatype tags the key domain of one index. It is fixed per index
// (persisted in the header page) and never changes, so node-level code
// branches on it directly instead of going through an interface.
type Datatype uint8

const (
	Integer Datatype = iota // int32, natural ordering
	Double                  // float64, natural ordering, NaN rejected
	String                  // fixed 10-byte ASCII, NUL right-padded
)

// StringKeySize is the fixed width of STRING keys. Longer values are
// truncated when the key is formed.
const StringKeySize = 10

func (d Datatype) String() string {
	switch d {
	case Integer:
		return "integer"
	case Double:
		return "double"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

func (d Datatype) Valid() bool {
	return d == Integer || d == Double || d == String
}

// KeySize returns the on-disk width of one key of this domain.
func (d Datatype) KeySize() int {
	switch d {
	case Integer:
		return 4
	case Double:
		return 8
	case String:
		return StringKeySize
	default:
		return 0
	}
}

// normalizeKey copies src into a canonical fixed-width key.
// STRING keys are truncated to StringKeySize, cut at the first NUL and
// right-padded with NULs so that comparisons never see residual bytes.
func normalizeKey(dt Datatype, src []byte) ([]byte, error) {
	switch dt {
	case Integer:
		if len(src) < 4 {
			return nil, fmt.Errorf("%w: integer key needs 4 bytes, got %d", ErrInvalidKey, len(src))
		}
		out := make([]byte, 4)
		copy(out, src[:4])
		return out, nil

	case Double:
		if len(src) < 8 {
			return nil, fmt.Errorf("%w: double key needs 8 bytes, got %d", ErrInvalidKey, len(src))
		}
		v := bx.F64(src)
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN is not an indexable key", ErrInvalidKey)
		}
		out := make([]byte, 8)
		copy(out, src[:8])
		return out, nil

	case String:
		out := make([]byte, StringKeySize)
		n := min(len(src), StringKeySize)
		copy(out, src[:n])
		// Cut at the first NUL; everything after is padding.
		if i := bytes.IndexByte(out, 0); i >= 0 {
			for j := i; j < StringKeySize; j++ {
				out[j] = 0
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unsupported datatype %d", ErrInvalidKey, dt)
	}
}

// compareKeys orders two fixed-width keys of the same domain.
func compareKeys(dt Datatype, a, b []byte) int {
	switch dt {
	case Integer:
		x, y := bx.I32(a), bx.I32(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case Double:
		x, y := bx.F64(a), bx.F64(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	default:
		return bytes.Compare(a[:StringKeySize], b[:StringKeySize])
	}
}

// IntKey / DoubleKey / StringKey build key bytes for callers that hold
// Go values rather than raw record bytes (tests, the demo driver).
func IntKey(v int32) []byte {
	b := make([]byte, 4)
	bx.PutI32(b, v)
	return b
}

func DoubleKey(v float64) []byte {
	b := make([]byte, 8)
	bx.PutF64(b, v)
	return b
}

func StringKey(s string) []byte {
	b := make([]byte, StringKeySize)
	copy(b, s)
	return b
}
