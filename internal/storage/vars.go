package storage

import "errors"

const (
	OneB  = 1 << 0  // 1
	OneKB = 1 << 10 // 1,024
	OneMB = 1 << 20 // 1,048,576
	OneGB = 1 << 30 // 1,073,741,824

	SegmentSize       = 1 << 30                // 1 GiB
	PageSize          = 1 << 13                // 8,192 (8 KiB)
	MaxPagePerSegment = SegmentSize / PageSize // 131,072 pages/segment

	SlottedHeaderSize = 12 // flags(2) + pageID(4) + lower(2) + upper(2) + special(2)
	SlotSize          = 6  // 3 * uint16: offset, length, flags
)

// Page ids are 1-based across all files. Id 0 means "no page"; the
// byte region for page 0 is never written, so a file's first real
// page lives at offset PageSize.
const InvalidPageID uint32 = 0

const (
	FileMode0644 = 0o644
	FileMode0664 = 0o664
	FileMode0755 = 0o755
)

var (
	ErrTupleTooLarge = errors.New("storage: tuple too large for inline")
	ErrNoSpace       = errors.New("storage: not enough free space")
	ErrBadSlot       = errors.New("storage: invalid slot")
	ErrCorruption    = errors.New("storage: corrupt slot or tuple bounds")
	ErrWrongSize     = errors.New("storage: buffer size != PageSize")
)
