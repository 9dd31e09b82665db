package log

import (
	"path/filepath"
	"testing"
	"time"

	"voxelstream.ai/internal/stream/driver"
)

func TestTickLogRoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	for i := uint64(1); i <= 4; i++ {
		if i == 3 {
			clock = clock.Add(2 * time.Minute)
		}
		e := driver.TickEntry{
			Tick:        i,
			Anchor:      [3]int{int(i), 0, 0},
			Initialized: int(i),
			Frames:      []driver.FrameRef{{Kind: "CHUNK", Slot: int(i), Digest: i * 7}},
		}
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "ticks"), "ticks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected one file per hour, got %v", files)
	}
	var got []uint64
	for _, p := range files {
		err := ReadTicks(p, func(e driver.TickEntry) error {
			if e.Frames[0].Digest != e.Tick*7 {
				t.Fatalf("tick %d digest %d", e.Tick, e.Frames[0].Digest)
			}
			got = append(got, e.Tick)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
	}
	if len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Fatalf("ticks %v", got)
	}
}
