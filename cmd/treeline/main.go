package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/treelinedb/treeline/internal"
	"github.com/treelinedb/treeline/internal/alias/bx"
	"github.com/treelinedb/treeline/internal/btree"
	"github.com/treelinedb/treeline/internal/bufferpool"
	"github.com/treelinedb/treeline/internal/heap"
	"github.com/treelinedb/treeline/internal/storage"
)

// Demo record layout: id int32 at offset 0, score float64 at offset 4,
// name 10 ASCII bytes at offset 12. The index only ever sees
// (offset, type); nothing below depends on the rest of the layout.
const (
	recIDOffset    = 0
	recScoreOffset = 4
	recNameOffset  = 12
	recSize        = 22
)

func encodeRecord(id int32, score float64, name string) []byte {
	rec := make([]byte, recSize)
	bx.PutI32At(rec, recIDOffset, id)
	bx.PutF64At(rec, recScoreOffset, score)
	copy(rec[recNameOffset:], name)
	return rec
}

func main() {
	cfgPath := flag.String("config", "", "path to yaml config")
	rows := flag.Int("rows", 2000, "number of demo rows")
	flag.Parse()

	workdir := "data"
	poolCap := bufferpool.DefaultCapacity
	if *cfgPath != "" {
		cfg, err := internal.LoadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		workdir = cfg.Storage.Workdir
		poolCap = cfg.Storage.PoolCapacity
		if cfg.Debug {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	}

	sm := storage.NewStorageManager()

	// Fresh demo data on every run.
	relFS := storage.LocalFileSet{
		Dir:  filepath.Join(workdir, "tables"),
		Base: "players",
	}
	if err := storage.RemoveAllSegments(relFS); err != nil && !os.IsNotExist(err) {
		log.Fatalf("reset tables: %v", err)
	}
	if err := btree.DropIndex(btree.IndexFileSet(filepath.Join(workdir, "indexes"), "players", recIDOffset)); err != nil {
		log.Fatalf("reset indexes: %v", err)
	}

	relBP := bufferpool.NewPool(sm, relFS, poolCap)
	tbl, err := heap.OpenTable("players", sm, relFS, relBP)
	if err != nil {
		log.Fatalf("open table: %v", err)
	}

	for i := 1; i <= *rows; i++ {
		rec := encodeRecord(int32(i), float64(i)/2, fmt.Sprintf("p-%d", i))
		if _, err := tbl.Insert(rec); err != nil {
			log.Fatalf("insert row %d: %v", i, err)
		}
	}
	if err := tbl.Flush(); err != nil {
		log.Fatalf("flush table: %v", err)
	}

	// Index on the id attribute
	idxFS := btree.IndexFileSet(filepath.Join(workdir, "indexes"), "players", recIDOffset)
	idxBP := bufferpool.NewPool(sm, idxFS, poolCap)
	idx, err := btree.Construct(sm, idxFS, idxBP, "players", recIDOffset, btree.Integer, heap.NewFileScan(tbl))
	if err != nil {
		log.Fatalf("construct index: %v", err)
	}
	defer func() { _ = idx.Close() }()

	fmt.Printf("built index %q over %d rows, height %d\n", idx.Name(), *rows, idx.Height())

	// Equality lookup
	rids, err := idx.Lookup(btree.IntKey(7))
	if err != nil {
		log.Fatalf("lookup: %v", err)
	}
	for _, rid := range rids {
		rec, err := tbl.Get(rid)
		if err != nil {
			log.Fatalf("heap get: %v", err)
		}
		fmt.Printf("id=7 -> rid=(%d,%d) score=%g\n", rid.PageNo, rid.SlotNo, bx.F64At(rec, recScoreOffset))
	}

	// Bounded range scan
	lo, hi := btree.IntKey(10), btree.IntKey(20)
	out, err := idx.RangeScan(lo, btree.GTE, hi, btree.LTE)
	if err != nil {
		log.Fatalf("range scan: %v", err)
	}
	fmt.Printf("ids in [10,20]: %d rids\n", len(out))
}
