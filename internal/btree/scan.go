package btree

import (
	"errors"
	"log/slog"

	"github.com/treelinedb/treeline/internal/heap"
	"github.com/treelinedb/treeline/internal/storage"
)

// Operator is a scan endpoint comparator. The low endpoint accepts
// GT/GTE, the high endpoint LT/LTE; anything else is ErrBadOpcode.
type Operator uint8

const (
	LT Operator = iota
	LTE
	GTE
	GT
)

func (o Operator) String() string {
	switch o {
	case LT:
		return "<"
	case LTE:
		return "<="
	case GTE:
		return ">="
	case GT:
		return ">"
	default:
		return "?"
	}
}

type scanStatus uint8

const (
	scanIdle scanStatus = iota
	scanActive
	scanExhausted
)

// scanState is the range-scan cursor: the bounds, the currently pinned
// leaf, and the entry position inside it. Exactly one leaf stays
// pinned while the scan is ACTIVE.
type scanState struct {
	status scanStatus

	lowKey  []byte // nil = -inf
	highKey []byte // nil = +inf
	lowOp   Operator
	highOp  Operator

	leafPage *storage.Page
	pos      int
}

// StartScan positions a scan at the first entry satisfying the low
// endpoint. A scan already in progress is ended first. Nil endpoint
// keys mean unbounded on that side.
func (idx *Index) StartScan(lowKey []byte, lowOp Operator, highKey []byte, highOp Operator) error {
	if idx.scan.status != scanIdle {
		if err := idx.releaseScan(); err != nil {
			return err
		}
	}

	if lowOp != GT && lowOp != GTE {
		return ErrBadOpcode
	}
	if highOp != LT && highOp != LTE {
		return ErrBadOpcode
	}

	var low, high []byte
	var err error
	if lowKey != nil {
		if low, err = normalizeKey(idx.attrType, lowKey); err != nil {
			return err
		}
	}
	if highKey != nil {
		if high, err = normalizeKey(idx.attrType, highKey); err != nil {
			return err
		}
	}
	if low != nil && high != nil {
		c := compareKeys(idx.attrType, low, high)
		if c > 0 || (c == 0 && (lowOp == GT || highOp == LT)) {
			return ErrBadScanRange
		}
	}

	p, err := idx.findLeafForScan(low)
	if err != nil {
		return err
	}
	leaf := asLeaf(p, idx.attrType)

	pos := 0
	if low != nil {
		pos = leaf.lowerBound(low)
	}

	idx.scan = scanState{
		status:   scanActive,
		lowKey:   low,
		highKey:  high,
		lowOp:    lowOp,
		highOp:   highOp,
		leafPage: p,
		pos:      pos,
	}

	// The start position may sit past the last entry (or the leaf may
	// be empty); hop right until an entry exists or the chain ends.
	if err := idx.skipToEntry(); err != nil {
		return err
	}

	// An exclusive low endpoint skips the run of equal keys, which can
	// spill across leaves.
	if low != nil && lowOp == GT {
		for idx.scan.status == scanActive {
			cur := asLeaf(idx.scan.leafPage, idx.attrType)
			if compareKeys(idx.attrType, cur.keyAt(idx.scan.pos), low) != 0 {
				break
			}
			idx.scan.pos++
			if err := idx.skipToEntry(); err != nil {
				return err
			}
		}
	}

	slog.Debug("btree.scan.start",
		"index", idx.fs.Base,
		"low_op", lowOp.String(),
		"high_op", highOp.String(),
		"status", idx.scan.status == scanActive,
	)
	return nil
}

// skipToEntry advances the cursor across empty tails: while pos is at
// the end of the current leaf, follow the sibling chain. Transitions
// to EXHAUSTED at the end of the chain.
func (idx *Index) skipToEntry() error {
	for {
		leaf := asLeaf(idx.scan.leafPage, idx.attrType)
		if idx.scan.pos < leaf.count() {
			return nil
		}
		sib := leaf.rightSib()
		if err := idx.bp.Unpin(idx.scan.leafPage, false); err != nil {
			idx.scan.leafPage = nil
			idx.scan.status = scanExhausted
			return err
		}
		idx.scan.leafPage = nil
		if sib == storage.InvalidPageID {
			idx.scan.status = scanExhausted
			return nil
		}
		p, err := idx.bp.GetPage(sib)
		if err != nil {
			idx.scan.status = scanExhausted
			return err
		}
		idx.scan.leafPage = p
		idx.scan.pos = 0
	}
}

// NextMatch emits the RID of the next qualifying entry. Once the high
// endpoint fails, the scan transitions to EXHAUSTED and every further
// call fails with ErrScanCompleted.
func (idx *Index) NextMatch() (heap.RID, error) {
	switch idx.scan.status {
	case scanIdle:
		return heap.RID{}, ErrScanNotInitialized
	case scanExhausted:
		return heap.RID{}, ErrScanCompleted
	}

	leaf := asLeaf(idx.scan.leafPage, idx.attrType)
	k := leaf.keyAt(idx.scan.pos)

	if idx.scan.highKey != nil {
		c := compareKeys(idx.attrType, k, idx.scan.highKey)
		if c > 0 || (c == 0 && idx.scan.highOp == LT) {
			if err := idx.releaseScanPage(); err != nil {
				return heap.RID{}, err
			}
			idx.scan.status = scanExhausted
			return heap.RID{}, ErrScanCompleted
		}
	}

	rid := leaf.ridAt(idx.scan.pos)
	idx.scan.pos++
	if idx.scan.pos == leaf.count() {
		if err := idx.skipToEntry(); err != nil {
			return heap.RID{}, err
		}
	}
	return rid, nil
}

// EndScan releases the held leaf and returns the scan to IDLE. Calling
// it without a preceding StartScan fails with ErrScanNotInitialized.
func (idx *Index) EndScan() error {
	if idx.scan.status == scanIdle {
		return ErrScanNotInitialized
	}
	return idx.releaseScan()
}

func (idx *Index) releaseScanPage() error {
	if idx.scan.leafPage == nil {
		return nil
	}
	err := idx.bp.Unpin(idx.scan.leafPage, false)
	idx.scan.leafPage = nil
	return err
}

func (idx *Index) releaseScan() error {
	err := idx.releaseScanPage()
	idx.scan = scanState{status: scanIdle}
	return err
}

// RangeScan runs a whole bounded scan and collects the matching RIDs
// in key order. Nil endpoints scan unbounded on that side.
func (idx *Index) RangeScan(lowKey []byte, lowOp Operator, highKey []byte, highOp Operator) ([]heap.RID, error) {
	if err := idx.StartScan(lowKey, lowOp, highKey, highOp); err != nil {
		return nil, err
	}
	var out []heap.RID
	for {
		rid, err := idx.NextMatch()
		if errors.Is(err, ErrScanCompleted) {
			break
		}
		if err != nil {
			_ = idx.EndScan()
			return nil, err
		}
		out = append(out, rid)
	}
	if err := idx.EndScan(); err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup returns every RID stored under exactly key, in insertion
// order, or ErrNoSuchKey when none exists.
func (idx *Index) Lookup(key []byte) ([]heap.RID, error) {
	rids, err := idx.RangeScan(key, GTE, key, LTE)
	if err != nil {
		return nil, err
	}
	if len(rids) == 0 {
		return nil, ErrNoSuchKey
	}
	return rids, nil
}
