package bufferpool

import (
	"errors"
	"sync"

	"github.com/treelinedb/treeline/internal/storage"
)

var (
	DefaultCapacity = 128

	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")
	ErrPagePinned  = errors.New("bufferpool: page is pinned")
	ErrNotPinned   = errors.New("bufferpool: page is not resident or not pinned")
)

type Replacer interface {
	RecordAccess(frameID int)
	SetEvictable(frameID int, evictable bool)
	Evict() (frameID int, ok bool)
	Remove(frameID int)
	Size() int
}

// Manager is the buffer-manager contract the index core and the heap
// layer consume. Every page handed out is pinned; callers must Unpin
// exactly once, passing dirty=true iff they mutated the bytes.
type Manager interface {
	GetPage(pageID uint32) (*storage.Page, error)
	AllocPage() (*storage.Page, error)
	Unpin(page *storage.Page, dirty bool) error
	FlushAll() error
}

type Frame struct {
	PageID uint32
	Page   *storage.Page
	Dirty  bool
	Pin    int32
}

var _ Manager = (*Pool)(nil)

// Pool is a fixed-capacity buffer of page frames for ONE file set.
type Pool struct {
	sm *storage.StorageManager
	fs storage.FileSet

	mu        sync.Mutex
	frames    []*Frame       // len == capacity, nil == free slot
	pageTable map[uint32]int // PageID -> frame index

	// next page id to hand out from AllocPage; 0 = not yet computed
	// from the on-disk size.
	nextPageID uint32

	replacementPolicy Replacer
}

func NewPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		sm:                sm,
		fs:                fs,
		frames:            make([]*Frame, capacity),
		pageTable:         make(map[uint32]int),
		replacementPolicy: newClockAdapter(capacity),
	}
}

// takeFrame returns the index of a usable frame: a free slot if one
// exists, otherwise an evicted victim (flushed first when dirty).
// Caller holds p.mu.
func (p *Pool) takeFrame() (int, error) {
	for i, f := range p.frames {
		if f == nil {
			return i, nil
		}
	}

	victimIdx, ok := p.replacementPolicy.Evict()
	if !ok {
		return -1, ErrNoFreeFrame
	}
	victim := p.frames[victimIdx]
	if victim == nil || victim.Pin != 0 {
		// Replacer should never hand back nil/pinned victims.
		return -1, ErrNoFreeFrame
	}

	if victim.Dirty {
		if err := p.sm.SavePage(p.fs, victim.PageID, *victim.Page); err != nil {
			// Put victim back as evictable.
			p.replacementPolicy.RecordAccess(victimIdx)
			p.replacementPolicy.SetEvictable(victimIdx, true)
			return -1, err
		}
		victim.Dirty = false
	}

	delete(p.pageTable, victim.PageID)
	p.frames[victimIdx] = nil
	return victimIdx, nil
}

// install pins a freshly produced page into frame idx. Caller holds p.mu.
func (p *Pool) install(idx int, page *storage.Page, dirty bool) {
	p.frames[idx] = &Frame{
		PageID: page.PageID(),
		Page:   page,
		Dirty:  dirty,
		Pin:    1,
	}
	p.pageTable[page.PageID()] = idx
	p.replacementPolicy.RecordAccess(idx)
	p.replacementPolicy.SetEvictable(idx, false)
}

// GetPage pins and returns the page with the given id, reading it from
// disk on a miss.
func (p *Pool) GetPage(pageID uint32) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		if f == nil {
			// Inconsistent: mapping exists but frame is nil -> cleanup.
			delete(p.pageTable, pageID)
		} else {
			wasZero := (f.Pin == 0)
			f.Pin++
			p.replacementPolicy.RecordAccess(idx)
			if wasZero {
				p.replacementPolicy.SetEvictable(idx, false)
			}
			return f.Page, nil
		}
	}

	idx, err := p.takeFrame()
	if err != nil {
		return nil, err
	}
	page, err := p.sm.LoadPage(p.fs, pageID)
	if err != nil {
		return nil, err
	}
	p.install(idx, page, false)
	return page, nil
}

// AllocPage extends the file by one page and returns it pinned and
// zeroed. The frame starts dirty so the new page reaches disk even if
// the caller never writes into it.
func (p *Pool) AllocPage() (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nextPageID == storage.InvalidPageID {
		n, err := p.sm.CountPages(p.fs)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			n = 1 // page 0 is reserved
		}
		p.nextPageID = n
	}

	idx, err := p.takeFrame()
	if err != nil {
		return nil, err
	}

	page := storage.NewPage(p.nextPageID)
	p.nextPageID++
	p.install(idx, page, true)
	return page, nil
}

// Unpin decreases pin count and marks dirty optionally.
func (p *Pool) Unpin(page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	pageID := page.PageID()

	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return ErrNotPinned
	}
	f := p.frames[idx]
	if f == nil {
		return ErrNotPinned
	}
	if f.Pin == 0 {
		return ErrNotPinned
	}

	if dirty {
		f.Dirty = true
	}
	f.Pin--
	if f.Pin == 0 {
		p.replacementPolicy.SetEvictable(idx, true)
	}
	return nil
}

// FlushAll writes every dirty frame back to disk. It fails with
// ErrPagePinned if any frame is still pinned: callers are expected to
// release all pages before asking for a full flush.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.frames {
		if f != nil && f.Pin != 0 {
			return ErrPagePinned
		}
	}

	for _, f := range p.frames {
		if f == nil || !f.Dirty {
			continue
		}
		if err := p.sm.SavePage(p.fs, f.PageID, *f.Page); err != nil {
			return err
		}
		f.Dirty = false
	}
	return nil
}
