package btree

import "errors"

var (
	// ErrBadIndexInfo means an existing index file's header disagrees
	// with the requested (relation, attribute offset, attribute type).
	ErrBadIndexInfo = errors.New("btree: index header does not match requested relation/offset/type")

	// ErrBadOpcode means a scan was started with a comparator outside
	// the allowed set (low: GT/GTE, high: LT/LTE).
	ErrBadOpcode = errors.New("btree: invalid scan operator")

	// ErrBadScanRange means the low/high endpoints describe an empty range.
	ErrBadScanRange = errors.New("btree: empty scan range")

	// ErrNoSuchKey is returned by equality lookup when the key is absent.
	ErrNoSuchKey = errors.New("btree: no such key")

	ErrScanNotInitialized = errors.New("btree: scan not initialized")
	ErrScanCompleted      = errors.New("btree: scan completed")

	// ErrNodeFull is internal: insertAt on a node whose count == capacity.
	// The insert engine reacts by splitting, so it never escapes the package.
	ErrNodeFull = errors.New("btree: node is full")

	// ErrInvalidKey covers malformed key bytes (short buffer, NaN double).
	ErrInvalidKey = errors.New("btree: invalid key")
)
