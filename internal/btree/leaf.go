package btree

import (
	"log/slog"

	"github.com/treelinedb/treeline/internal/alias/bx"
	"github.com/treelinedb/treeline/internal/heap"
	"github.com/treelinedb/treeline/internal/storage"
)

// leafNode is a view of a page as a leaf: count, the key array, the
// parallel RID array, and the right-sibling pointer. Keys are kept in
// ascending order; ridAt(i) belongs to keyAt(i). The view is valid
// only while the page's frame is pinned.
type leafNode struct {
	page    *storage.Page
	dt      Datatype
	keySize int
	cap     int
}

func asLeaf(p *storage.Page, dt Datatype) leafNode {
	ks := dt.KeySize()
	return leafNode{page: p, dt: dt, keySize: ks, cap: leafCapacity(ks)}
}

// init lays an empty leaf over a zeroed page.
func (n leafNode) init() {
	n.setCount(0)
	n.setRightSib(storage.InvalidPageID)
}

func (n leafNode) count() int {
	return int(bx.U16At(n.page.Buf, leafOffCount))
}

func (n leafNode) setCount(v int) {
	bx.PutU16At(n.page.Buf, leafOffCount, uint16(v))
}

func (n leafNode) rightSib() uint32 {
	return bx.U32At(n.page.Buf, leafOffRightSib)
}

func (n leafNode) setRightSib(v uint32) {
	bx.PutU32At(n.page.Buf, leafOffRightSib, v)
}

func (n leafNode) keyOff(i int) int {
	return leafOffKeys + i*n.keySize
}

func (n leafNode) ridOff(i int) int {
	return leafOffKeys + n.cap*n.keySize + i*ridSize
}

// keyAt aliases the page buffer; copy before the pin is released.
func (n leafNode) keyAt(i int) []byte {
	off := n.keyOff(i)
	return n.page.Buf[off : off+n.keySize]
}

func (n leafNode) ridAt(i int) heap.RID {
	off := n.ridOff(i)
	return heap.RID{
		PageNo: bx.U32At(n.page.Buf, off),
		SlotNo: bx.U16At(n.page.Buf, off+4),
	}
}

func (n leafNode) setEntry(i int, key []byte, rid heap.RID) {
	copy(n.page.Buf[n.keyOff(i):], key[:n.keySize])
	off := n.ridOff(i)
	bx.PutU32At(n.page.Buf, off, rid.PageNo)
	bx.PutU16At(n.page.Buf, off+4, rid.SlotNo)
}

// lowerBound returns the smallest i in [0, count] with keyAt(i) >= key.
func (n leafNode) lowerBound(key []byte) int {
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

// upperBound returns the smallest i in [0, count] with keyAt(i) > key.
// Inserting there keeps duplicates in arrival order.
func (n leafNode) upperBound(key []byte) int {
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

// insertAt shifts entries [i, count) right by one and writes the new
// entry at i. Fails with ErrNodeFull when the leaf is at capacity.
func (n leafNode) insertAt(i int, key []byte, rid heap.RID) error {
	cnt := n.count()
	if cnt == n.cap {
		return ErrNodeFull
	}
	copy(n.page.Buf[n.keyOff(i+1):n.keyOff(cnt+1)], n.page.Buf[n.keyOff(i):n.keyOff(cnt)])
	copy(n.page.Buf[n.ridOff(i+1):n.ridOff(cnt+1)], n.page.Buf[n.ridOff(i):n.ridOff(cnt)])
	n.setEntry(i, key, rid)
	n.setCount(cnt + 1)
	return nil
}

// splitInto moves the upper half of this leaf into right (a freshly
// initialized empty leaf) and links right between this leaf and its
// old sibling. The returned separator is a copy of right's first key.
func (n leafNode) splitInto(right leafNode) []byte {
	cnt := n.count()
	mid := (cnt + 1) / 2
	moved := cnt - mid

	copy(right.page.Buf[right.keyOff(0):right.keyOff(moved)], n.page.Buf[n.keyOff(mid):n.keyOff(cnt)])
	copy(right.page.Buf[right.ridOff(0):right.ridOff(moved)], n.page.Buf[n.ridOff(mid):n.ridOff(cnt)])
	right.setCount(moved)
	n.setCount(mid)

	right.setRightSib(n.rightSib())
	n.setRightSib(right.page.PageID())

	sep := make([]byte, n.keySize)
	copy(sep, right.keyAt(0))

	slog.Debug("btree.leaf.split",
		"page", n.page.PageID(),
		"right", right.page.PageID(),
		"left_count", mid,
		"right_count", moved,
	)
	return sep
}
