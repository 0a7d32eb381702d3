package btree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treelinedb/treeline/internal/alias/bx"
	"github.com/treelinedb/treeline/internal/bufferpool"
	"github.com/treelinedb/treeline/internal/heap"
	"github.com/treelinedb/treeline/internal/storage"
)

// Test record layout: id int32 at 0, score float64 at 4, name 10 ASCII
// bytes at 12. The index is only ever told (offset, type).
const (
	trecIDOff    = 0
	trecScoreOff = 4
	trecNameOff  = 12
	trecSize     = 22
)

func encodeTestRecord(id int32, score float64, name string) []byte {
	rec := make([]byte, trecSize)
	bx.PutI32At(rec, trecIDOff, id)
	bx.PutF64At(rec, trecScoreOff, score)
	copy(rec[trecNameOff:], name)
	return rec
}

type testEnv struct {
	sm     *storage.StorageManager
	tbl    *heap.Table
	idxDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sm := storage.NewStorageManager()
	relFS := storage.LocalFileSet{
		Dir:  t.TempDir(),
		Base: "players",
	}
	tbl, err := heap.OpenTable("players", sm, relFS, bufferpool.NewPool(sm, relFS, bufferpool.DefaultCapacity))
	require.NoError(t, err)

	return &testEnv{
		sm:     sm,
		tbl:    tbl,
		idxDir: t.TempDir(),
	}
}

// openIndex opens (or creates) the index over the given attribute with
// a fresh buffer pool, the way a new process would.
func (e *testEnv) openIndex(t *testing.T, attrOffset int, dt Datatype) *Index {
	t.Helper()

	fs := IndexFileSet(e.idxDir, e.tbl.Name, attrOffset)
	bp := bufferpool.NewPool(e.sm, fs, bufferpool.DefaultCapacity)
	idx, err := Open(e.sm, fs, bp, e.tbl.Name, attrOffset, dt)
	require.NoError(t, err)
	return idx
}

// insertRow adds one record to the heap and returns its RID.
func (e *testEnv) insertRow(t *testing.T, id int32) heap.RID {
	t.Helper()
	rid, err := e.tbl.Insert(encodeTestRecord(id, float64(id)/2, fmt.Sprintf("s-%d", id)))
	require.NoError(t, err)
	return rid
}

// idOfRID reads the record back from the heap and decodes its id.
func (e *testEnv) idOfRID(t *testing.T, rid heap.RID) int32 {
	t.Helper()
	rec, err := e.tbl.Get(rid)
	require.NoError(t, err)
	return bx.I32At(rec, trecIDOff)
}

func TestIndex_FileNameAndEmptyScan(t *testing.T) {
	env := newTestEnv(t)
	idx := env.openIndex(t, trecIDOff, Integer)
	t.Cleanup(func() { _ = idx.Close() })

	require.Equal(t, "players.0", idx.Name())
	require.Equal(t, 1, idx.Height())

	rids, err := idx.RangeScan(nil, GTE, nil, LTE)
	require.NoError(t, err)
	require.Empty(t, rids)

	_, err = idx.Lookup(IntKey(1))
	require.ErrorIs(t, err, ErrNoSuchKey)
}

func TestIndex_BulkBuildAndLookup(t *testing.T) {
	env := newTestEnv(t)

	const n = 2000
	rids := make(map[int32]heap.RID, n)
	for i := int32(1); i <= n; i++ {
		rids[i] = env.insertRow(t, i)
	}
	require.NoError(t, env.tbl.Flush())

	idx := env.openIndex(t, trecIDOff, Integer)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.Build(heap.NewFileScan(env.tbl)))
	require.GreaterOrEqual(t, idx.Height(), 2)

	for _, k := range []int32{1, 500, 1000, 1999, 2000} {
		got, err := idx.Lookup(IntKey(k))
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, rids[k], got[0])
	}

	_, err := idx.Lookup(IntKey(n + 1))
	require.ErrorIs(t, err, ErrNoSuchKey)
}

func TestIndex_ShuffledInsertsScanSorted(t *testing.T) {
	env := newTestEnv(t)
	idx := env.openIndex(t, trecIDOff, Integer)
	t.Cleanup(func() { _ = idx.Close() })

	const n = 5000
	ids := make([]int32, n)
	for i := range ids {
		ids[i] = int32(i + 1)
	}
	rand.New(rand.NewSource(1)).Shuffle(n, func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	for _, id := range ids {
		rid := env.insertRow(t, id)
		require.NoError(t, idx.Insert(IntKey(id), rid))
	}

	got, err := idx.RangeScan(nil, GTE, nil, LTE)
	require.NoError(t, err)
	require.Len(t, got, n)

	prev := int32(0)
	for _, rid := range got {
		id := env.idOfRID(t, rid)
		require.Greater(t, id, prev, "scan output not strictly ascending")
		prev = id
	}
}

func TestIndex_DuplicatesKeepInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	idx := env.openIndex(t, trecIDOff, Integer)
	t.Cleanup(func() { _ = idx.Close() })

	// Neighbors around the duplicate run.
	for _, id := range []int32{3, 9} {
		require.NoError(t, idx.Insert(IntKey(id), env.insertRow(t, id)))
	}

	want := make([]heap.RID, 0, 3)
	for i := 0; i < 3; i++ {
		rid := env.insertRow(t, 7)
		require.NoError(t, idx.Insert(IntKey(7), rid))
		want = append(want, rid)
	}

	got, err := idx.Lookup(IntKey(7))
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Same through an explicit [7,7] range.
	got, err = idx.RangeScan(IntKey(7), GTE, IntKey(7), LTE)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestIndex_StringKeys(t *testing.T) {
	env := newTestEnv(t)
	idx := env.openIndex(t, trecNameOff, String)
	t.Cleanup(func() { _ = idx.Close() })

	names := []string{"apple", "banana", "cherry", "date", "egg"}
	byName := make(map[string]heap.RID, len(names))
	for i, name := range names {
		rec := encodeTestRecord(int32(i), 0, name)
		rid, err := env.tbl.Insert(rec)
		require.NoError(t, err)
		byName[name] = rid
		require.NoError(t, idx.Insert(rec[trecNameOff:trecNameOff+StringKeySize], rid))
	}

	got, err := idx.RangeScan(StringKey("apple"), GT, StringKey("egg"), LT)
	require.NoError(t, err)
	require.Equal(t, []heap.RID{byName["banana"], byName["cherry"], byName["date"]}, got)

	// Keys longer than the fixed width are truncated when formed.
	rid, err := env.tbl.Insert(encodeTestRecord(99, 0, "dragonfrui"))
	require.NoError(t, err)
	require.NoError(t, idx.Insert([]byte("dragonfruit-is-long"), rid))

	got, err = idx.Lookup(StringKey("dragonfrui"))
	require.NoError(t, err)
	require.Equal(t, []heap.RID{rid}, got)
}

func TestIndex_DoubleKeys(t *testing.T) {
	env := newTestEnv(t)
	idx := env.openIndex(t, trecScoreOff, Double)
	t.Cleanup(func() { _ = idx.Close() })

	scores := []float64{-3.5, 0, 1.25, 2.5, 2.75, 10}
	byScore := make(map[float64]heap.RID, len(scores))
	for i, s := range scores {
		rec := encodeTestRecord(int32(i), s, "x")
		rid, err := env.tbl.Insert(rec)
		require.NoError(t, err)
		byScore[s] = rid
		require.NoError(t, idx.Insert(rec[trecScoreOff:trecScoreOff+8], rid))
	}

	got, err := idx.RangeScan(DoubleKey(0), GTE, DoubleKey(2.75), LT)
	require.NoError(t, err)
	require.Equal(t, []heap.RID{byScore[0], byScore[1.25], byScore[2.5]}, got)
}

func TestIndex_ReopenMatchesFreshScan(t *testing.T) {
	env := newTestEnv(t)

	const n = 10000
	want := make([]heap.RID, 0, n)
	for i := int32(1); i <= n; i++ {
		want = append(want, env.insertRow(t, i))
	}
	require.NoError(t, env.tbl.Flush())

	fs := IndexFileSet(env.idxDir, env.tbl.Name, trecIDOff)
	idx, err := Construct(env.sm, fs, bufferpool.NewPool(env.sm, fs, bufferpool.DefaultCapacity),
		env.tbl.Name, trecIDOff, Integer, heap.NewFileScan(env.tbl))
	require.NoError(t, err)
	heightBefore := idx.Height()
	require.NoError(t, idx.Close())

	reopened := env.openIndex(t, trecIDOff, Integer)
	t.Cleanup(func() { _ = reopened.Close() })
	require.Equal(t, heightBefore, reopened.Height())

	got, err := reopened.RangeScan(nil, GTE, nil, LTE)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestIndex_ReopenWithMismatchedMetadata(t *testing.T) {
	env := newTestEnv(t)

	idx := env.openIndex(t, trecIDOff, Integer)
	require.NoError(t, idx.Close())

	fs := IndexFileSet(env.idxDir, env.tbl.Name, trecIDOff)

	// Same file, different datatype.
	_, err := Open(env.sm, fs, bufferpool.NewPool(env.sm, fs, bufferpool.DefaultCapacity),
		env.tbl.Name, trecIDOff, Double)
	require.ErrorIs(t, err, ErrBadIndexInfo)

	// Same file, different relation name.
	_, err = Open(env.sm, fs, bufferpool.NewPool(env.sm, fs, bufferpool.DefaultCapacity),
		"other_relation", trecIDOff, Integer)
	require.ErrorIs(t, err, ErrBadIndexInfo)
}

// TestIndex_GrowsToHeightThree pushes enough ascending keys through
// the insert engine to split a full non-leaf root: leaf splits feed
// the root one separator each until it overflows too.
func TestIndex_GrowsToHeightThree(t *testing.T) {
	if testing.Short() {
		t.Skip("bulk volume test")
	}

	env := newTestEnv(t)
	idx := env.openIndex(t, trecIDOff, Integer)
	t.Cleanup(func() { _ = idx.Close() })

	// One leaf split per ~leafCap/2 inserts, one root split once the
	// root holds nonLeafCap separators.
	n := (idx.LeafCapacity()/2 + 1) * (idx.NonLeafCapacity() + 2)
	rid := heap.RID{PageNo: 1, SlotNo: 0}
	for i := 1; i <= n; i++ {
		// Synthetic RIDs keep the volume test off the heap layer.
		rid.PageNo = uint32(i/100 + 1)
		rid.SlotNo = uint16(i % 100)
		require.NoError(t, idx.Insert(IntKey(int32(i)), rid))
	}
	require.Equal(t, 3, idx.Height())

	got, err := idx.RangeScan(IntKey(0), GT, IntKey(int32(n)), LTE)
	require.NoError(t, err)
	require.Len(t, got, n)

	// Spot-check the far ends through point lookups.
	first, err := idx.Lookup(IntKey(1))
	require.NoError(t, err)
	require.Equal(t, []heap.RID{{PageNo: 1, SlotNo: 1}}, first)

	last, err := idx.Lookup(IntKey(int32(n)))
	require.NoError(t, err)
	require.Len(t, last, 1)
}
