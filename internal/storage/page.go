package storage

import "github.com/treelinedb/treeline/internal/alias/bx"

// Page is a fixed-size block of bytes plus its logical page id.
//
// The id lives outside Buf: index node layouts own the full page,
// so identity is tracked by the frame that holds the page, not by
// the bytes themselves. Typed views (SlottedPage here, the node
// views in internal/btree) reinterpret Buf in place; a view is only
// valid while the page's frame stays pinned.
type Page struct {
	id  uint32
	Buf []byte
}

func NewPage(id uint32) *Page {
	return &Page{id: id, Buf: make([]byte, PageSize)}
}

// WrapPage adopts an existing buffer; used by the storage manager
// after reading a page image from disk.
func WrapPage(id uint32, buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, ErrWrongSize
	}
	return &Page{id: id, Buf: buf}, nil
}

func (p *Page) PageID() uint32 { return p.id }

// Zero clears every byte. Callers re-initialize whatever view they
// intend to lay over the page afterwards.
func (p *Page) Zero() {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
}

// Slot flags. Only SlotFlagNormal is produced by this system; the
// field stays in the on-disk format so the layout does not change
// if row deletion is ever added.
const SlotFlagNormal uint16 = 0

type Slot struct {
	Offset uint16
	Length uint16
	Flags  uint16
}

// SlottedPage is a view of a Page as a slotted record page:
//
// +------------------+ 0
// | header           |
// | slot array       | <-- lower
// +------------------+
// |   free space     |
// +------------------+ <-- upper
// |  tuple data      |
// |  (grows down)    |
// +------------------+ <-- special (unused)
// +------------------+ PageSize (8192)
//
// Heap relation files use this layout; index node pages do not.
type SlottedPage struct {
	Page *Page
}

// Header offsets
const (
	offFlags   = 0
	offPageID  = 2
	offLower   = 6
	offUpper   = 8
	offSpecial = 10
)

func (sp SlottedPage) lower() uint16     { return bx.U16At(sp.Page.Buf, offLower) }
func (sp SlottedPage) setLower(v uint16) { bx.PutU16At(sp.Page.Buf, offLower, v) }
func (sp SlottedPage) upper() uint16     { return bx.U16At(sp.Page.Buf, offUpper) }
func (sp SlottedPage) setUpper(v uint16) { bx.PutU16At(sp.Page.Buf, offUpper, v) }

// Init lays the slotted header over a zeroed page.
func (sp SlottedPage) Init() {
	sp.Page.Zero()
	bx.PutU16At(sp.Page.Buf, offFlags, 0)
	bx.PutU32At(sp.Page.Buf, offPageID, sp.Page.id)
	sp.setLower(SlottedHeaderSize)
	sp.setUpper(PageSize)
	bx.PutU16At(sp.Page.Buf, offSpecial, PageSize)
}

// IsUninitialized reports whether the underlying bytes have never
// been laid out (all-zero pages read past EOF look like this).
func (sp SlottedPage) IsUninitialized() bool {
	return sp.lower() == 0 && sp.upper() == 0
}

func (sp SlottedPage) FreeSpace() int {
	return int(sp.upper() - sp.lower())
}

func (sp SlottedPage) NumSlots() int {
	return int(sp.lower()-SlottedHeaderSize) / SlotSize
}

func (sp SlottedPage) slotOff(idx int) int {
	return SlottedHeaderSize + idx*SlotSize
}

func (sp SlottedPage) getSlot(i int) (Slot, error) {
	if i < 0 || i >= sp.NumSlots() {
		return Slot{}, ErrBadSlot
	}
	o := sp.slotOff(i)
	if o+SlotSize > int(sp.lower()) {
		return Slot{}, ErrCorruption
	}
	return Slot{
		Offset: bx.U16At(sp.Page.Buf, o+0),
		Length: bx.U16At(sp.Page.Buf, o+2),
		Flags:  bx.U16At(sp.Page.Buf, o+4),
	}, nil
}

func (sp SlottedPage) putSlot(idx int, s Slot) error {
	// Only appending the next slot is allowed beyond existing ones.
	if idx < 0 || idx > sp.NumSlots() {
		return ErrBadSlot
	}
	off := sp.slotOff(idx)
	if idx == sp.NumSlots() && off+SlotSize > int(sp.upper()) {
		return ErrNoSpace
	}
	if off+SlotSize > len(sp.Page.Buf) {
		return ErrCorruption
	}

	bx.PutU16At(sp.Page.Buf, off+0, s.Offset)
	bx.PutU16At(sp.Page.Buf, off+2, s.Length)
	bx.PutU16At(sp.Page.Buf, off+4, s.Flags)
	return nil
}

// InsertTuple appends a tuple and returns its slot number.
func (sp SlottedPage) InsertTuple(tup []byte) (slot int, err error) {
	maxInline := PageSize - SlottedHeaderSize - SlotSize
	if len(tup) > maxInline {
		return -1, ErrTupleTooLarge
	}
	need := len(tup) + SlotSize
	if sp.FreeSpace() < need {
		return -1, ErrNoSpace
	}
	u := int(sp.upper()) - len(tup)
	copy(sp.Page.Buf[u:], tup)
	sp.setUpper(uint16(u))

	i := sp.NumSlots()
	if err := sp.putSlot(i, Slot{Offset: uint16(u), Length: uint16(len(tup)), Flags: SlotFlagNormal}); err != nil {
		return -1, err
	}
	sp.setLower(sp.lower() + SlotSize)
	return i, nil
}

// ReadTuple returns the tuple bytes in place; the slice aliases the
// page buffer and is valid only while the page is pinned.
func (sp SlottedPage) ReadTuple(slot int) ([]byte, error) {
	s, err := sp.getSlot(slot)
	if err != nil {
		return nil, err
	}
	if s.Flags != SlotFlagNormal || s.Offset == 0 || s.Length == 0 {
		return nil, ErrCorruption
	}
	start, end := int(s.Offset), int(s.Offset)+int(s.Length)
	if start < int(sp.upper()) || end > PageSize || start >= end {
		return nil, ErrCorruption
	}
	return sp.Page.Buf[start:end], nil
}
