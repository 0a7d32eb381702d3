package btree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treelinedb/treeline/internal/alias/bx"
)

func TestDatatype_KeySize(t *testing.T) {
	require.Equal(t, 4, Integer.KeySize())
	require.Equal(t, 8, Double.KeySize())
	require.Equal(t, 10, String.KeySize())
	require.False(t, Datatype(99).Valid())
}

func TestNormalizeKey_Integer(t *testing.T) {
	k, err := normalizeKey(Integer, IntKey(-42))
	require.NoError(t, err)
	require.Equal(t, int32(-42), bx.I32(k))

	// Extra trailing bytes are ignored.
	long := append(IntKey(7), 0xFF, 0xFF)
	k, err = normalizeKey(Integer, long)
	require.NoError(t, err)
	require.Equal(t, int32(7), bx.I32(k))

	_, err = normalizeKey(Integer, []byte{1, 2})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestNormalizeKey_DoubleRejectsNaN(t *testing.T) {
	k, err := normalizeKey(Double, DoubleKey(2.5))
	require.NoError(t, err)
	require.Equal(t, 2.5, bx.F64(k))

	_, err = normalizeKey(Double, DoubleKey(math.NaN()))
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = normalizeKey(Double, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestNormalizeKey_String(t *testing.T) {
	// Truncated to 10 bytes.
	k, err := normalizeKey(String, []byte("abcdefghijKLMNOP"))
	require.NoError(t, err)
	require.Equal(t, []byte("abcdefghij"), k)

	// Short strings are NUL right-padded.
	k, err = normalizeKey(String, []byte("cat"))
	require.NoError(t, err)
	require.Equal(t, append([]byte("cat"), 0, 0, 0, 0, 0, 0, 0), k)

	// Residual bytes after an embedded NUL are scrubbed.
	dirty := []byte{'a', 'b', 0, 'x', 'y', 'z', 'x', 'y', 'z', 'x'}
	k, err = normalizeKey(String, dirty)
	require.NoError(t, err)
	require.Equal(t, append([]byte("ab"), 0, 0, 0, 0, 0, 0, 0, 0), k)
}

func TestCompareKeys(t *testing.T) {
	require.Negative(t, compareKeys(Integer, IntKey(-5), IntKey(3)))
	require.Positive(t, compareKeys(Integer, IntKey(10), IntKey(3)))
	require.Zero(t, compareKeys(Integer, IntKey(3), IntKey(3)))

	require.Negative(t, compareKeys(Double, DoubleKey(-1.5), DoubleKey(0)))
	require.Positive(t, compareKeys(Double, DoubleKey(9.75), DoubleKey(9.5)))
	require.Zero(t, compareKeys(Double, DoubleKey(4.25), DoubleKey(4.25)))

	require.Negative(t, compareKeys(String, StringKey("apple"), StringKey("banana")))
	require.Positive(t, compareKeys(String, StringKey("egg"), StringKey("date")))
	require.Zero(t, compareKeys(String, StringKey("cherry"), StringKey("cherry")))

	// Prefix orders before its extension thanks to NUL padding.
	require.Negative(t, compareKeys(String, StringKey("app"), StringKey("apple")))
}
