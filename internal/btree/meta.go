package btree

import (
	"bytes"

	"github.com/treelinedb/treeline/internal/alias/bx"
	"github.com/treelinedb/treeline/internal/storage"
)

// headerPageID is where the persisted index metadata lives. It is the
// first page the buffer manager allocates for a fresh index file and
// never moves; the root page id inside it does move as the tree grows.
const headerPageID uint32 = 1

// Header page layout:
//
//	[relationName 20][attrOffset i32][attrType u8][rootIsLeaf u8]
//	[height u16][rootPage u32]
const (
	relationNameSize = 20

	hdrOffRelName    = 0
	hdrOffAttrOffset = 20
	hdrOffAttrType   = 24
	hdrOffRootIsLeaf = 25
	hdrOffHeight     = 26
	hdrOffRootPage   = 28
)

// headerPage is a view of page 1; valid while the page stays pinned.
type headerPage struct {
	page *storage.Page
}

func (h headerPage) relationName() string {
	raw := h.page.Buf[hdrOffRelName : hdrOffRelName+relationNameSize]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

func (h headerPage) setRelationName(name string) {
	dst := h.page.Buf[hdrOffRelName : hdrOffRelName+relationNameSize]
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, name)
}

func (h headerPage) attrOffset() int {
	return int(bx.I32At(h.page.Buf, hdrOffAttrOffset))
}

func (h headerPage) setAttrOffset(v int) {
	bx.PutI32At(h.page.Buf, hdrOffAttrOffset, int32(v))
}

func (h headerPage) attrType() Datatype {
	return Datatype(h.page.Buf[hdrOffAttrType])
}

func (h headerPage) setAttrType(d Datatype) {
	h.page.Buf[hdrOffAttrType] = byte(d)
}

func (h headerPage) rootIsLeaf() bool {
	return h.page.Buf[hdrOffRootIsLeaf] != 0
}

func (h headerPage) setRootIsLeaf(v bool) {
	if v {
		h.page.Buf[hdrOffRootIsLeaf] = 1
	} else {
		h.page.Buf[hdrOffRootIsLeaf] = 0
	}
}

func (h headerPage) height() int {
	return int(bx.U16At(h.page.Buf, hdrOffHeight))
}

func (h headerPage) setHeight(v int) {
	bx.PutU16At(h.page.Buf, hdrOffHeight, uint16(v))
}

func (h headerPage) rootPage() uint32 {
	return bx.U32At(h.page.Buf, hdrOffRootPage)
}

func (h headerPage) setRootPage(v uint32) {
	bx.PutU32At(h.page.Buf, hdrOffRootPage, v)
}
