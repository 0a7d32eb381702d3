package btree

import (
	"os"

	"github.com/treelinedb/treeline/internal/storage"
)

// DropIndex removes all index segments. Idempotent: dropping an index
// that never existed is not an error.
func DropIndex(lfs storage.LocalFileSet) error {
	if err := os.MkdirAll(lfs.Dir, storage.FileMode0755); err != nil {
		return err
	}
	return storage.RemoveAllSegments(lfs)
}
