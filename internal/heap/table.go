package heap

import (
	"github.com/treelinedb/treeline/internal/bufferpool"
	"github.com/treelinedb/treeline/internal/storage"
)

// Table is an append-only heap relation over slotted pages. Records
// are opaque byte strings; whoever indexes them decides which bytes
// mean what.
type Table struct {
	Name string
	SM   *storage.StorageManager
	FS   storage.LocalFileSet
	BP   bufferpool.Manager

	// LastPage is the highest allocated page id (0 = empty relation).
	LastPage uint32
}

// OpenTable binds a heap relation to its file set, picking up whatever
// pages already exist on disk.
func OpenTable(
	name string,
	sm *storage.StorageManager,
	fs storage.LocalFileSet,
	bp bufferpool.Manager,
) (*Table, error) {
	count, err := sm.CountPages(fs)
	if err != nil {
		return nil, err
	}
	var last uint32
	if count > 0 {
		last = count - 1
	}
	return &Table{
		Name:     name,
		SM:       sm,
		FS:       fs,
		BP:       bp,
		LastPage: last,
	}, nil
}

// Insert appends a record. Always prefers the last page; when it is
// full a fresh page is allocated.
func (t *Table) Insert(rec []byte) (RID, error) {
	if t.LastPage == storage.InvalidPageID {
		return t.insertOnFreshPage(rec)
	}

	p, err := t.BP.GetPage(t.LastPage)
	if err != nil {
		return RID{}, err
	}
	sp := storage.SlottedPage{Page: p}
	if sp.IsUninitialized() {
		sp.Init()
	}

	slot, err := sp.InsertTuple(rec)
	if err == storage.ErrNoSpace {
		// Current page is full; unpin clean and start a new one.
		_ = t.BP.Unpin(p, false)
		return t.insertOnFreshPage(rec)
	}
	if err != nil {
		_ = t.BP.Unpin(p, false)
		return RID{}, err
	}

	if err := t.BP.Unpin(p, true); err != nil {
		return RID{}, err
	}
	return RID{PageNo: t.LastPage, SlotNo: uint16(slot)}, nil
}

func (t *Table) insertOnFreshPage(rec []byte) (RID, error) {
	p, err := t.BP.AllocPage()
	if err != nil {
		return RID{}, err
	}
	sp := storage.SlottedPage{Page: p}
	sp.Init()

	slot, err := sp.InsertTuple(rec)
	if err != nil {
		_ = t.BP.Unpin(p, true) // page header was initialized
		return RID{}, err
	}

	t.LastPage = p.PageID()
	if err := t.BP.Unpin(p, true); err != nil {
		return RID{}, err
	}
	return RID{PageNo: t.LastPage, SlotNo: uint16(slot)}, nil
}

// Get reads a single record by RID. The returned slice is a copy.
func (t *Table) Get(id RID) ([]byte, error) {
	p, err := t.BP.GetPage(id.PageNo)
	if err != nil {
		return nil, err
	}
	sp := storage.SlottedPage{Page: p}

	data, err := sp.ReadTuple(int(id.SlotNo))
	if err != nil {
		_ = t.BP.Unpin(p, false)
		return nil, err
	}
	out := append([]byte(nil), data...)
	if err := t.BP.Unpin(p, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Table) Flush() error {
	return t.BP.FlushAll()
}
