package btree

import (
	"log/slog"

	"github.com/treelinedb/treeline/internal/alias/bx"
	"github.com/treelinedb/treeline/internal/storage"
)

// nonLeafNode is a view of a page as an internal node: count separator
// keys, count+1 child pointers, and the node's level (1 means the
// children are leaves). For count = n, child i holds keys k with
// keyAt(i-1) <= k < keyAt(i), taking -inf / +inf at the edges.
//
// Descent is biased by purpose: inserts send a key equal to a
// separator to the RIGHT child so duplicates stay in arrival order,
// scans send it to the LEFT child so the walk starts at the first
// occurrence. The leaf sibling chain covers the gap in between.
type nonLeafNode struct {
	page    *storage.Page
	dt      Datatype
	keySize int
	cap     int
}

func asNonLeaf(p *storage.Page, dt Datatype) nonLeafNode {
	ks := dt.KeySize()
	return nonLeafNode{page: p, dt: dt, keySize: ks, cap: nonLeafCapacity(ks)}
}

// init lays an empty internal node of the given level over a zeroed page.
func (n nonLeafNode) init(level int) {
	n.setCount(0)
	n.setLevel(level)
}

func (n nonLeafNode) count() int {
	return int(bx.U16At(n.page.Buf, nonLeafOffCount))
}

func (n nonLeafNode) setCount(v int) {
	bx.PutU16At(n.page.Buf, nonLeafOffCount, uint16(v))
}

func (n nonLeafNode) level() int {
	return int(bx.U16At(n.page.Buf, nonLeafOffLevel))
}

func (n nonLeafNode) setLevel(v int) {
	bx.PutU16At(n.page.Buf, nonLeafOffLevel, uint16(v))
}

func (n nonLeafNode) keyOff(i int) int {
	return nonLeafOffKeys + i*n.keySize
}

func (n nonLeafNode) childOff(i int) int {
	return nonLeafOffKeys + n.cap*n.keySize + i*childPtrSize
}

// keyAt aliases the page buffer; copy before the pin is released.
func (n nonLeafNode) keyAt(i int) []byte {
	off := n.keyOff(i)
	return n.page.Buf[off : off+n.keySize]
}

func (n nonLeafNode) childAt(i int) uint32 {
	return bx.U32At(n.page.Buf, n.childOff(i))
}

func (n nonLeafNode) setChildAt(i int, v uint32) {
	bx.PutU32At(n.page.Buf, n.childOff(i), v)
}

// childForInsert picks the child for a descending insert: the smallest
// i with keyAt(i) > key, i.e. equal keys continue to the right.
func (n nonLeafNode) childForInsert(key []byte) int {
	lo, hi := 0, n.count()
	for lo < hi {
		mid := (lo + hi) / 2
		if compareKeys(n.dt, n.keyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// childForScan picks the child for positioning a scan: the smallest i
// with keyAt(i) >= key, i.e. equal keys descend to the left so the
// scan starts at the first occurrence. A nil key means -inf.
func (n nonLeafNode) childForScan(key []byte) int {
	if key == nil {
		return 0
	}
	lo, hi := 0, n.count()
	for lo < hi {
		mid := (lo + hi) / 2
		if compareKeys(n.dt, n.keyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// insertAt places a separator at key position i with its right child
// at position i+1, shifting the tail of both arrays. Fails with
// ErrNodeFull at capacity.
func (n nonLeafNode) insertAt(i int, key []byte, rightChild uint32) error {
	cnt := n.count()
	if cnt == n.cap {
		return ErrNodeFull
	}
	copy(n.page.Buf[n.keyOff(i+1):n.keyOff(cnt+1)], n.page.Buf[n.keyOff(i):n.keyOff(cnt)])
	copy(n.page.Buf[n.childOff(i+2):n.childOff(cnt+2)], n.page.Buf[n.childOff(i+1):n.childOff(cnt+1)])
	copy(n.page.Buf[n.keyOff(i):], key[:n.keySize])
	n.setChildAt(i+1, rightChild)
	n.setCount(cnt + 1)
	return nil
}

// splitInto pushes up the middle key: the upper half of keys and their
// children move into right (a freshly initialized node of the same
// level), and the middle key is returned without being kept in either
// half.
func (n nonLeafNode) splitInto(right nonLeafNode) []byte {
	cnt := n.count()
	mid := cnt / 2
	moved := cnt - mid - 1

	promoted := make([]byte, n.keySize)
	copy(promoted, n.keyAt(mid))

	copy(right.page.Buf[right.keyOff(0):right.keyOff(moved)], n.page.Buf[n.keyOff(mid+1):n.keyOff(cnt)])
	copy(right.page.Buf[right.childOff(0):right.childOff(moved+1)], n.page.Buf[n.childOff(mid+1):n.childOff(cnt+1)])
	right.setCount(moved)
	right.setLevel(n.level())
	n.setCount(mid)

	slog.Debug("btree.internal.split",
		"page", n.page.PageID(),
		"right", right.page.PageID(),
		"level", n.level(),
		"left_count", mid,
		"right_count", moved,
	)
	return promoted
}
