package btree

import "github.com/treelinedb/treeline/internal/storage"

// On-disk node layouts. All integers little-endian, all offsets fixed
// once the key width is known; capacities derive from PageSize and are
// part of the on-disk format.
//
// Leaf page:
//
//	[count u16][rightSib u32][keys cap*keySize][rids cap*6]
//
// Non-leaf page:
//
//	[count u16][level u16][keys cap*keySize][children (cap+1)*4]
const (
	ridSize      = 6 // PageNo u32 + SlotNo u16
	childPtrSize = 4

	leafOffCount    = 0
	leafOffRightSib = 2
	leafOffKeys     = 6

	nonLeafOffCount = 0
	nonLeafOffLevel = 2
	nonLeafOffKeys  = 4
)

// leafCapacity returns the max number of (key, RID) entries per leaf.
func leafCapacity(keySize int) int {
	return (storage.PageSize - leafOffKeys) / (keySize + ridSize)
}

// nonLeafCapacity returns the max number of separator keys per
// non-leaf; such a node holds capacity+1 child pointers.
func nonLeafCapacity(keySize int) int {
	return (storage.PageSize - nonLeafOffKeys - childPtrSize) / (keySize + childPtrSize)
}
