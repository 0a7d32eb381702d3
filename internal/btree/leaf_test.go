package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treelinedb/treeline/internal/alias/bx"
	"github.com/treelinedb/treeline/internal/heap"
	"github.com/treelinedb/treeline/internal/storage"
)

// Node views only need a page; tests build them without a pool.
func newTestLeaf(t *testing.T, pageID uint32) leafNode {
	t.Helper()
	n := asLeaf(storage.NewPage(pageID), Integer)
	n.init()
	return n
}

func TestLeaf_InsertAtKeepsOrder(t *testing.T) {
	n := newTestLeaf(t, 2)

	for i, v := range []int32{30, 10, 50, 20, 40} {
		k := IntKey(v)
		require.NoError(t, n.insertAt(n.upperBound(k), k, heap.RID{PageNo: 1, SlotNo: uint16(i)}))
	}
	require.Equal(t, 5, n.count())

	want := []int32{10, 20, 30, 40, 50}
	for i, v := range want {
		require.Equal(t, v, bx.I32(n.keyAt(i)))
	}

	// RIDs follow their keys through the shifts.
	require.Equal(t, heap.RID{PageNo: 1, SlotNo: 1}, n.ridAt(0)) // key 10
	require.Equal(t, heap.RID{PageNo: 1, SlotNo: 2}, n.ridAt(4)) // key 50
}

func TestLeaf_Bounds(t *testing.T) {
	n := newTestLeaf(t, 2)
	for i, v := range []int32{10, 20, 20, 30} {
		require.NoError(t, n.insertAt(i, IntKey(v), heap.RID{PageNo: 1, SlotNo: uint16(i)}))
	}

	require.Equal(t, 0, n.lowerBound(IntKey(5)))
	require.Equal(t, 1, n.lowerBound(IntKey(20)))
	require.Equal(t, 3, n.upperBound(IntKey(20)))
	require.Equal(t, 4, n.lowerBound(IntKey(99)))
}

func TestLeaf_DuplicatesInsertAfterEquals(t *testing.T) {
	n := newTestLeaf(t, 2)

	for slot := uint16(0); slot < 3; slot++ {
		k := IntKey(7)
		require.NoError(t, n.insertAt(n.upperBound(k), k, heap.RID{PageNo: 9, SlotNo: slot}))
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, uint16(i), n.ridAt(i).SlotNo)
	}
}

func TestLeaf_InsertAtFullIsNodeFull(t *testing.T) {
	n := newTestLeaf(t, 2)

	for i := 0; i < n.cap; i++ {
		require.NoError(t, n.insertAt(i, IntKey(int32(i)), heap.RID{PageNo: 1, SlotNo: uint16(i)}))
	}
	err := n.insertAt(n.cap, IntKey(int32(n.cap)), heap.RID{PageNo: 1, SlotNo: 0})
	require.ErrorIs(t, err, ErrNodeFull)
}

func TestLeaf_SplitMovesUpperHalfAndLinksSibling(t *testing.T) {
	left := newTestLeaf(t, 2)
	left.setRightSib(77) // pretend an old sibling exists

	for i := 0; i < left.cap; i++ {
		require.NoError(t, left.insertAt(i, IntKey(int32(i)), heap.RID{PageNo: 1, SlotNo: uint16(i)}))
	}

	right := asLeaf(storage.NewPage(3), Integer)
	right.init()
	sep := left.splitInto(right)

	mid := (left.cap + 1) / 2
	require.Equal(t, mid, left.count())
	require.Equal(t, left.cap-mid, right.count())

	// Separator is a copy of the right leaf's first key.
	require.Equal(t, int32(mid), bx.I32(sep))
	require.Equal(t, int32(mid), bx.I32(right.keyAt(0)))

	// Sibling chain: left -> right -> old sibling.
	require.Equal(t, uint32(3), left.rightSib())
	require.Equal(t, uint32(77), right.rightSib())

	// Entries stayed aligned with their RIDs.
	require.Equal(t, uint16(mid), right.ridAt(0).SlotNo)
	require.Equal(t, uint16(left.cap-1), right.ridAt(right.count()-1).SlotNo)
}

func TestNonLeaf_InsertAtShiftsKeysAndChildren(t *testing.T) {
	n := asNonLeaf(storage.NewPage(4), Integer)
	n.init(1)
	require.Equal(t, 1, n.level())

	n.setChildAt(0, 100)
	require.NoError(t, n.insertAt(0, IntKey(10), 101))
	require.NoError(t, n.insertAt(1, IntKey(30), 103))
	// Insert between them.
	require.NoError(t, n.insertAt(1, IntKey(20), 102))

	require.Equal(t, 3, n.count())
	for i, v := range []int32{10, 20, 30} {
		require.Equal(t, v, bx.I32(n.keyAt(i)))
	}
	for i, c := range []uint32{100, 101, 102, 103} {
		require.Equal(t, c, n.childAt(i))
	}
}

func TestNonLeaf_ChildSelectionBias(t *testing.T) {
	n := asNonLeaf(storage.NewPage(4), Integer)
	n.init(1)
	n.setChildAt(0, 100)
	require.NoError(t, n.insertAt(0, IntKey(10), 101))
	require.NoError(t, n.insertAt(1, IntKey(20), 102))

	// Strictly between separators: both biases agree.
	require.Equal(t, 1, n.childForInsert(IntKey(15)))
	require.Equal(t, 1, n.childForScan(IntKey(15)))

	// Equal to a separator: inserts go right, scans go left.
	require.Equal(t, 1, n.childForInsert(IntKey(10)))
	require.Equal(t, 0, n.childForScan(IntKey(10)))

	// Outside the separator range.
	require.Equal(t, 0, n.childForInsert(IntKey(5)))
	require.Equal(t, 2, n.childForInsert(IntKey(99)))
	require.Equal(t, 0, n.childForScan(nil))
}

func TestNonLeaf_SplitPromotesMiddleKey(t *testing.T) {
	n := asNonLeaf(storage.NewPage(4), Integer)
	n.init(3)
	n.setChildAt(0, 200)
	for i := 0; i < n.cap; i++ {
		require.NoError(t, n.insertAt(i, IntKey(int32(i)), uint32(201+i)))
	}

	right := asNonLeaf(storage.NewPage(5), Integer)
	right.init(0)
	promoted := n.splitInto(right)

	mid := n.cap / 2
	require.Equal(t, int32(mid), bx.I32(promoted))
	require.Equal(t, mid, n.count())
	require.Equal(t, n.cap-mid-1, right.count())
	require.Equal(t, 3, right.level())

	// The promoted key lives in neither half.
	require.Equal(t, int32(mid-1), bx.I32(n.keyAt(n.count()-1)))
	require.Equal(t, int32(mid+1), bx.I32(right.keyAt(0)))

	// Child pointers moved with their keys: right's child 0 is the old
	// child mid+1.
	require.Equal(t, uint32(201+mid), right.childAt(0))
	require.Equal(t, uint32(200), n.childAt(0))
	require.Equal(t, uint32(201+n.cap-1), right.childAt(right.count()))
}
