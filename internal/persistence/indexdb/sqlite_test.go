package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"voxelstream.ai/internal/stream/driver"
)

func TestSQLiteIndex_UploadHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	entries := []driver.TickEntry{
		{Tick: 1, Initialized: 0, Frames: []driver.FrameRef{
			{Kind: "CHUNK", Slot: 0, World: [3]int{0, 0, 0}, Digest: 0xabc},
			{Kind: "INDEX_MAP", Slot: -1, Digest: 1},
		}},
		{Tick: 2, Initialized: 4, Frames: []driver.FrameRef{
			{Kind: "CHUNK", Slot: 4, World: [3]int{1, 0, 0}, Digest: 0xdef},
		}},
		{Tick: 9, Anchor: [3]int{5, 0, 0}, Initialized: 0, Frames: []driver.FrameRef{
			{Kind: "CHUNK", Slot: 0, World: [3]int{5, 0, 0}, Digest: 0x123},
		}},
	}
	for _, e := range entries {
		if err := idx.WriteTick(e); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	// Close drains the writer, so reopen for queries.
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if idx.Dropped() != 0 {
		t.Fatalf("dropped %d entries", idx.Dropped())
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	hist, err := idx.SlotHistory(context.Background(), 0)
	if err != nil {
		t.Fatalf("SlotHistory: %v", err)
	}
	if len(hist) != 2 || hist[0].World != [3]int{0, 0, 0} || hist[1].World != [3]int{5, 0, 0} || hist[1].Digest != "0000000000000123" {
		t.Fatalf("slot 0 history %+v", hist)
	}

	chunk, err := idx.ChunkHistory(context.Background(), [3]int{1, 0, 0})
	if err != nil {
		t.Fatalf("ChunkHistory: %v", err)
	}
	if len(chunk) != 1 || chunk[0].Slot != 4 || chunk[0].Tick != 2 {
		t.Fatalf("chunk history %+v", chunk)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var ax, frames int
	if err := db.QueryRow(`SELECT anchor_x,frames FROM ticks WHERE tick=9`).Scan(&ax, &frames); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if ax != 5 || frames != 1 {
		t.Fatalf("tick 9 row: anchor_x=%d frames=%d", ax, frames)
	}
}

func TestWriteTickAfterCloseIsNoop(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.Close()
	if err := idx.WriteTick(driver.TickEntry{Tick: 1}); err != nil {
		t.Fatalf("WriteTick after close: %v", err)
	}
}
