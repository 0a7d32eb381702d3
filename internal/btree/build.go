package btree

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/treelinedb/treeline/internal/bufferpool"
	"github.com/treelinedb/treeline/internal/heap"
	"github.com/treelinedb/treeline/internal/storage"
)

// RecordSource streams (RID, record bytes) pairs in relation order and
// signals exhaustion with heap.ErrEndOfFile. heap.FileScan satisfies it.
type RecordSource interface {
	Next() (heap.RID, []byte, error)
}

// Construct opens the index over (relation, attrOffset, attrType) and,
// when the index file did not exist yet, bulk-builds it from src. An
// existing file is only verified against the requested parameters; the
// relation is assumed unchanged since the index was built.
func Construct(
	sm *storage.StorageManager,
	fs storage.LocalFileSet,
	bp bufferpool.Manager,
	relationName string,
	attrOffset int,
	attrType Datatype,
	src RecordSource,
) (*Index, error) {
	existed, err := sm.Exists(fs)
	if err != nil {
		return nil, err
	}

	idx, err := Open(sm, fs, bp, relationName, attrOffset, attrType)
	if err != nil {
		return nil, err
	}
	if !existed && src != nil {
		if err := idx.Build(src); err != nil {
			_ = idx.Close()
			return nil, err
		}
	}
	return idx, nil
}

// Build bulk-constructs the index from a relation scan: one Insert per
// record, key taken at the configured byte offset. The end-of-file
// sentinel is normal termination; afterwards every dirty page is
// flushed through the buffer manager.
func (idx *Index) Build(src RecordSource) error {
	var n int
	for {
		rid, rec, err := src.Next()
		if errors.Is(err, heap.ErrEndOfFile) {
			break
		}
		if err != nil {
			return err
		}

		end := idx.attrOffset + idx.keySize
		if end > len(rec) {
			return fmt.Errorf("%w: record of %d bytes has no %s attribute at offset %d",
				ErrInvalidKey, len(rec), idx.attrType, idx.attrOffset)
		}
		if err := idx.Insert(rec[idx.attrOffset:end], rid); err != nil {
			return err
		}
		n++
	}

	slog.Debug("btree.build.done",
		"index", idx.fs.Base,
		"records", n,
		"height", idx.height,
	)
	return idx.bp.FlushAll()
}
