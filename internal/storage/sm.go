package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/treelinedb/treeline/internal/alias/util"
)

type FileSet interface {
	OpenSegment(segNo int32) (*os.File, error)
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet represents a local directory + base file name.
// Segments are stored as: Base, Base.1, Base.2, ...
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	path := filepath.Join(lfs.Dir, SegFileName(lfs.Base, segNo))
	if err := os.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, err
	}
	// RDWR | CREATE (no truncate)
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
}

// StorageManager maps a logical pageID -> (segment, offset).
type StorageManager struct{}

func NewStorageManager() *StorageManager {
	return &StorageManager{}
}

func (sm *StorageManager) locate(pageID uint32) (segNo int32, offset int64) {
	segNo = int32(pageID / MaxPagePerSegment)
	pageInSeg := int64(pageID % MaxPagePerSegment)
	offset = pageInSeg * PageSize
	return segNo, offset
}

// ReadPage reads exactly one page (PageSize bytes) into dst.
// If the underlying file is smaller than the requested offset+PageSize,
// the remainder is zero-filled. This allows "sparse" pages that are
// lazily initialized by higher layers.
func (sm *StorageManager) ReadPage(fs FileSet, pageID uint32, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("dst must be exactly %d bytes", PageSize)
	}
	segNo, off := sm.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly one page (PageSize bytes) from src to disk
// at the location computed from pageID.
func (sm *StorageManager) WritePage(fs FileSet, pageID uint32, src []byte) error {
	if len(src) != PageSize {
		return fmt.Errorf("src must be exactly %d bytes", PageSize)
	}
	if pageID == InvalidPageID {
		return fmt.Errorf("storage: page id 0 is reserved")
	}
	segNo, off := sm.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// LoadPage reads a page image into memory and returns a raw Page.
// Layout interpretation is left to the caller's view type.
func (sm *StorageManager) LoadPage(fs FileSet, pageID uint32) (*Page, error) {
	buf := make([]byte, PageSize)
	if err := sm.ReadPage(fs, pageID, buf); err != nil {
		return nil, err
	}
	return WrapPage(pageID, buf)
}

// SavePage writes the in-memory Page back to disk.
func (sm *StorageManager) SavePage(fs FileSet, pageID uint32, p Page) error {
	if len(p.Buf) != PageSize {
		return fmt.Errorf("page buffer must be %d bytes", PageSize)
	}
	return sm.WritePage(fs, pageID, p.Buf)
}

// CountPages computes total pages for a given FileSet by scanning all
// segments. The count includes the reserved page-0 region, so for a
// non-empty file the highest allocated page id is CountPages-1.
func (sm *StorageManager) CountPages(fs FileSet) (uint32, error) {
	lfs, ok := fs.(LocalFileSet)
	if !ok {
		// Fall back to probing segment 0 only.
		f, err := fs.OpenSegment(0)
		if err != nil {
			return 0, err
		}
		info, statErr := f.Stat()
		_ = f.Close()
		if statErr != nil {
			return 0, statErr
		}
		return uint32(info.Size() / PageSize), nil
	}

	segs, err := listSegmentsLocal(lfs)
	if err != nil {
		return 0, err
	}

	var total uint32
	for _, segNo := range segs {
		path := filepath.Join(lfs.Dir, SegFileName(lfs.Base, segNo))
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		total += uint32(info.Size() / PageSize)
	}
	return total, nil
}

// Exists reports whether the file set already holds any pages, without
// creating anything on disk. Construct-time open-vs-create decisions
// go through this.
func (sm *StorageManager) Exists(lfs LocalFileSet) (bool, error) {
	path := filepath.Join(lfs.Dir, lfs.Base)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Size() >= PageSize, nil
}
