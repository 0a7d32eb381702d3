package heap

import (
	"errors"

	"github.com/treelinedb/treeline/internal/storage"
)

// ErrEndOfFile is the sentinel a FileScan returns once every record has
// been produced. Bulk index construction treats it as normal
// termination, never as a failure.
var ErrEndOfFile = errors.New("heap: end of file")

// FileScan streams (RID, record bytes) pairs in relation order: page by
// page, slot by slot. It keeps exactly one page pinned between Next
// calls and must be Closed when abandoned early.
type FileScan struct {
	tbl *Table

	pageID uint32
	slot   int
	page   *storage.Page
	done   bool
}

func NewFileScan(t *Table) *FileScan {
	return &FileScan{tbl: t, pageID: storage.InvalidPageID}
}

// Next returns the next record. The record bytes are a copy and stay
// valid after further Next/Close calls.
func (s *FileScan) Next() (RID, []byte, error) {
	if s.done {
		return RID{}, nil, ErrEndOfFile
	}

	for {
		if s.page == nil {
			next := s.pageID + 1
			if s.pageID == storage.InvalidPageID {
				next = 1
			}
			if next > s.tbl.LastPage {
				s.done = true
				return RID{}, nil, ErrEndOfFile
			}

			p, err := s.tbl.BP.GetPage(next)
			if err != nil {
				return RID{}, nil, err
			}
			s.page = p
			s.pageID = next
			s.slot = 0
		}

		sp := storage.SlottedPage{Page: s.page}
		if s.slot >= sp.NumSlots() {
			if err := s.tbl.BP.Unpin(s.page, false); err != nil {
				return RID{}, nil, err
			}
			s.page = nil
			continue
		}

		data, err := sp.ReadTuple(s.slot)
		if err != nil {
			_ = s.tbl.BP.Unpin(s.page, false)
			s.page = nil
			return RID{}, nil, err
		}

		id := RID{PageNo: s.pageID, SlotNo: uint16(s.slot)}
		s.slot++
		return id, append([]byte(nil), data...), nil
	}
}

// Close releases the pinned page, if any. Safe to call repeatedly.
func (s *FileScan) Close() error {
	s.done = true
	if s.page == nil {
		return nil
	}
	err := s.tbl.BP.Unpin(s.page, false)
	s.page = nil
	return err
}
