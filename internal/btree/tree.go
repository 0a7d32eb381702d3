package btree

import (
	"fmt"
	"log/slog"

	"github.com/treelinedb/treeline/internal/bufferpool"
	"github.com/treelinedb/treeline/internal/heap"
	"github.com/treelinedb/treeline/internal/storage"
)

// Index is the driver for one single-attribute B+ tree index file.
// It owns the cached header fields (root page id, root kind, height)
// and the scan state; all page access goes through the buffer manager.
//
// The index assumes exclusive access by one logical actor. Interleaving
// inserts with an ongoing scan is not supported.
type Index struct {
	sm *storage.StorageManager
	fs storage.LocalFileSet
	bp bufferpool.Manager

	relName    string
	attrOffset int
	attrType   Datatype
	keySize    int
	leafCap    int
	nonLeafCap int

	rootPage   uint32
	rootIsLeaf bool
	height     int

	scan scanState
}

// IndexFileName forms the deterministic file name for the index over
// one attribute of a relation: "<relation>.<offset>".
func IndexFileName(relationName string, attrOffset int) string {
	return fmt.Sprintf("%s.%d", relationName, attrOffset)
}

// IndexFileSet binds the index file name to a directory.
func IndexFileSet(dir, relationName string, attrOffset int) storage.LocalFileSet {
	return storage.LocalFileSet{
		Dir:  dir,
		Base: IndexFileName(relationName, attrOffset),
	}
}

// Open opens an existing index file or creates a fresh one with an
// empty leaf root. Reopening verifies the persisted header against the
// requested parameters and fails with ErrBadIndexInfo on mismatch.
func Open(
	sm *storage.StorageManager,
	fs storage.LocalFileSet,
	bp bufferpool.Manager,
	relationName string,
	attrOffset int,
	attrType Datatype,
) (*Index, error) {
	if !attrType.Valid() {
		return nil, fmt.Errorf("%w: datatype %d", ErrInvalidKey, attrType)
	}
	if attrOffset < 0 {
		return nil, fmt.Errorf("btree: negative attribute offset %d", attrOffset)
	}

	ks := attrType.KeySize()
	idx := &Index{
		sm:         sm,
		fs:         fs,
		bp:         bp,
		relName:    relationName,
		attrOffset: attrOffset,
		attrType:   attrType,
		keySize:    ks,
		leafCap:    leafCapacity(ks),
		nonLeafCap: nonLeafCapacity(ks),
	}

	exists, err := sm.Exists(fs)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := idx.loadHeader(); err != nil {
			return nil, err
		}
	} else {
		if err := idx.createEmpty(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Name returns the index file base name (outIndexName of construct).
func (idx *Index) Name() string { return idx.fs.Base }

func (idx *Index) Type() Datatype { return idx.attrType }

// Height is the number of node levels; 1 means the root is a leaf.
func (idx *Index) Height() int { return idx.height }

// LeafCapacity / NonLeafCapacity expose the derived fanouts.
func (idx *Index) LeafCapacity() int    { return idx.leafCap }
func (idx *Index) NonLeafCapacity() int { return idx.nonLeafCap }

func (idx *Index) loadHeader() error {
	p, err := idx.bp.GetPage(headerPageID)
	if err != nil {
		return err
	}
	h := headerPage{page: p}

	if h.relationName() != idx.relName ||
		h.attrOffset() != idx.attrOffset ||
		h.attrType() != idx.attrType {
		_ = idx.bp.Unpin(p, false)
		return fmt.Errorf("%w: header (%q, %d, %s) vs requested (%q, %d, %s)",
			ErrBadIndexInfo,
			h.relationName(), h.attrOffset(), h.attrType(),
			idx.relName, idx.attrOffset, idx.attrType)
	}

	idx.rootPage = h.rootPage()
	idx.rootIsLeaf = h.rootIsLeaf()
	idx.height = h.height()
	if err := idx.bp.Unpin(p, false); err != nil {
		return err
	}

	slog.Debug("btree.open",
		"index", idx.fs.Base,
		"root", idx.rootPage,
		"height", idx.height,
	)
	return nil
}

func (idx *Index) createEmpty() error {
	hp, err := idx.bp.AllocPage()
	if err != nil {
		return err
	}
	if hp.PageID() != headerPageID {
		_ = idx.bp.Unpin(hp, true)
		return fmt.Errorf("btree: header page allocated as %d, want %d", hp.PageID(), headerPageID)
	}

	rp, err := idx.bp.AllocPage()
	if err != nil {
		_ = idx.bp.Unpin(hp, true)
		return err
	}
	root := asLeaf(rp, idx.attrType)
	root.init()

	idx.rootPage = rp.PageID()
	idx.rootIsLeaf = true
	idx.height = 1

	h := headerPage{page: hp}
	h.setRelationName(idx.relName)
	h.setAttrOffset(idx.attrOffset)
	h.setAttrType(idx.attrType)
	h.setRootIsLeaf(true)
	h.setHeight(1)
	h.setRootPage(idx.rootPage)

	if err := idx.bp.Unpin(rp, true); err != nil {
		return err
	}
	if err := idx.bp.Unpin(hp, true); err != nil {
		return err
	}

	slog.Debug("btree.create",
		"index", idx.fs.Base,
		"relation", idx.relName,
		"attr_offset", idx.attrOffset,
		"attr_type", idx.attrType.String(),
		"root", idx.rootPage,
	)
	return nil
}

// writeHeader republishes the cached root fields into page 1. Called
// last within an insert, after every node write below it.
func (idx *Index) writeHeader() error {
	p, err := idx.bp.GetPage(headerPageID)
	if err != nil {
		return err
	}
	h := headerPage{page: p}
	h.setRootPage(idx.rootPage)
	h.setRootIsLeaf(idx.rootIsLeaf)
	h.setHeight(idx.height)
	return idx.bp.Unpin(p, true)
}

// pathFrame records one traversal step so split propagation can
// revisit parents; the page itself is unpinned between visits.
type pathFrame struct {
	pageID   uint32
	childIdx int
}

// Insert adds one (key, rid) entry. The key is the raw attribute bytes
// of the record, reinterpreted per the index datatype.
func (idx *Index) Insert(key []byte, rid heap.RID) error {
	k, err := normalizeKey(idx.attrType, key)
	if err != nil {
		return err
	}

	if idx.rootIsLeaf {
		sep, rightID, split, err := idx.leafInsert(idx.rootPage, k, rid)
		if err != nil {
			return err
		}
		if !split {
			return nil
		}
		return idx.growRoot(sep, rightID)
	}

	// Descend, recording (page, child index) per non-leaf. Pages are
	// unpinned as soon as the frame is recorded; propagation re-pins.
	path := make([]pathFrame, 0, idx.height)
	cur := idx.rootPage
	for {
		p, err := idx.bp.GetPage(cur)
		if err != nil {
			return err
		}
		n := asNonLeaf(p, idx.attrType)
		ci := n.childForInsert(k)
		child := n.childAt(ci)
		atLeaves := n.level() == 1
		if err := idx.bp.Unpin(p, false); err != nil {
			return err
		}

		path = append(path, pathFrame{pageID: cur, childIdx: ci})
		cur = child
		if atLeaves {
			break
		}
	}

	sep, rightID, split, err := idx.leafInsert(cur, k, rid)
	if err != nil {
		return err
	}

	// Propagate the separator up through the recorded path.
	for i := len(path) - 1; split && i >= 0; i-- {
		sep, rightID, split, err = idx.parentInsert(path[i], sep, rightID)
		if err != nil {
			return err
		}
	}
	if !split {
		return nil
	}
	return idx.growRoot(sep, rightID)
}

// leafInsert puts (key, rid) into the given leaf, splitting on
// overflow. On split it returns the separator and the new right
// sibling's page id.
func (idx *Index) leafInsert(leafID uint32, key []byte, rid heap.RID) (sep []byte, rightID uint32, split bool, err error) {
	p, err := idx.bp.GetPage(leafID)
	if err != nil {
		return nil, 0, false, err
	}
	n := asLeaf(p, idx.attrType)

	if n.count() < n.cap {
		if err := n.insertAt(n.upperBound(key), key, rid); err != nil {
			_ = idx.bp.Unpin(p, false)
			return nil, 0, false, err
		}
		return nil, 0, false, idx.bp.Unpin(p, true)
	}

	rp, err := idx.bp.AllocPage()
	if err != nil {
		_ = idx.bp.Unpin(p, false)
		return nil, 0, false, err
	}
	right := asLeaf(rp, idx.attrType)
	right.init()

	sep = n.splitInto(right)

	// The new entry goes into whichever half now owns its key range;
	// a key equal to the separator goes right, after its duplicates.
	target := n
	if compareKeys(idx.attrType, key, sep) >= 0 {
		target = right
	}
	if err := target.insertAt(target.upperBound(key), key, rid); err != nil {
		_ = idx.bp.Unpin(p, true)
		_ = idx.bp.Unpin(rp, true)
		return nil, 0, false, err
	}

	rightID = rp.PageID()
	if err := idx.bp.Unpin(p, true); err != nil {
		return nil, 0, false, err
	}
	if err := idx.bp.Unpin(rp, true); err != nil {
		return nil, 0, false, err
	}
	return sep, rightID, true, nil
}

// parentInsert places (sep, rightChild) into the parent recorded at
// frame, splitting the parent on overflow. On split the promoted
// middle key and the parent's new right sibling propagate further up.
func (idx *Index) parentInsert(frame pathFrame, sep []byte, rightChild uint32) (upSep []byte, upRight uint32, split bool, err error) {
	p, err := idx.bp.GetPage(frame.pageID)
	if err != nil {
		return nil, 0, false, err
	}
	n := asNonLeaf(p, idx.attrType)

	if n.count() < n.cap {
		if err := n.insertAt(frame.childIdx, sep, rightChild); err != nil {
			_ = idx.bp.Unpin(p, false)
			return nil, 0, false, err
		}
		return nil, 0, false, idx.bp.Unpin(p, true)
	}

	rp, err := idx.bp.AllocPage()
	if err != nil {
		_ = idx.bp.Unpin(p, false)
		return nil, 0, false, err
	}
	right := asNonLeaf(rp, idx.attrType)
	right.init(n.level())

	promoted := n.splitInto(right)

	// The pending separator keeps the position recorded during descent:
	// its child pointer must sit immediately right of the child that
	// split, and with duplicate separators a key comparison could place
	// it elsewhere. Descent indices <= leftCount stay in the left half.
	leftCount := n.count()
	target, pos := n, frame.childIdx
	if frame.childIdx > leftCount {
		target, pos = right, frame.childIdx-(leftCount+1)
	}
	if err := target.insertAt(pos, sep, rightChild); err != nil {
		_ = idx.bp.Unpin(p, true)
		_ = idx.bp.Unpin(rp, true)
		return nil, 0, false, err
	}

	upRight = rp.PageID()
	if err := idx.bp.Unpin(p, true); err != nil {
		return nil, 0, false, err
	}
	if err := idx.bp.Unpin(rp, true); err != nil {
		return nil, 0, false, err
	}
	return promoted, upRight, true, nil
}

// growRoot replaces the root after it split: a fresh non-leaf with one
// separator and the two halves as children, then the header update.
func (idx *Index) growRoot(sep []byte, rightID uint32) error {
	p, err := idx.bp.AllocPage()
	if err != nil {
		return err
	}
	n := asNonLeaf(p, idx.attrType)
	n.init(idx.height)
	n.setChildAt(0, idx.rootPage)
	if err := n.insertAt(0, sep, rightID); err != nil {
		_ = idx.bp.Unpin(p, true)
		return err
	}

	idx.rootPage = p.PageID()
	idx.rootIsLeaf = false
	idx.height++

	if err := idx.bp.Unpin(p, true); err != nil {
		return err
	}

	slog.Debug("btree.root.grow",
		"index", idx.fs.Base,
		"new_root", idx.rootPage,
		"height", idx.height,
	)
	return idx.writeHeader()
}

// findLeafForScan descends with the scan bias and pins the leaf where
// a scan from lowKey starts. A nil lowKey lands on the leftmost leaf.
func (idx *Index) findLeafForScan(lowKey []byte) (*storage.Page, error) {
	cur := idx.rootPage
	if idx.rootIsLeaf {
		return idx.bp.GetPage(cur)
	}
	for {
		p, err := idx.bp.GetPage(cur)
		if err != nil {
			return nil, err
		}
		n := asNonLeaf(p, idx.attrType)
		child := n.childAt(n.childForScan(lowKey))
		atLeaves := n.level() == 1
		if err := idx.bp.Unpin(p, false); err != nil {
			return nil, err
		}
		if atLeaves {
			return idx.bp.GetPage(child)
		}
		cur = child
	}
}

// Close ends any active scan and flushes the file through the buffer
// manager. The Index must not be used afterwards.
func (idx *Index) Close() error {
	if idx.scan.status != scanIdle {
		if err := idx.releaseScan(); err != nil {
			return err
		}
	}
	return idx.bp.FlushAll()
}
