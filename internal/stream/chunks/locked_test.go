package chunks

import (
	"sync"
	"testing"

	"voxelstream.ai/internal/voxel/mathx"
)

func TestLockedConcurrentOwners(t *testing.T) {
	p, _ := newCountingPool(t, Radii{2, 2, 2}, mathx.Vec3i{})
	l := NewLocked(p)

	var wg sync.WaitGroup
	drained := make(chan int, 1024)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := l.TryInitialize(); !ok {
					return
				}
				for _, d := range l.CleanDirtyChunks() {
					drained <- d.Slot
				}
			}
		}()
	}
	wg.Wait()
	close(drained)

	seen := map[int]bool{}
	for i := range drained {
		if seen[i] {
			t.Fatalf("slot %d drained twice", i)
		}
		seen[i] = true
	}
	for _, d := range l.CleanDirtyChunks() {
		seen[d.Slot] = true
	}
	if len(seen) != p.Len() {
		t.Fatalf("drained %d of %d slots", len(seen), p.Len())
	}
	if st := l.Stats(); st.Initialized != p.Len() || st.Dirty != 0 {
		t.Fatalf("stats %+v", st)
	}
	l.Do(func(p *Pool[*countingChunk]) {
		if p.Anchor() != (mathx.Vec3i{}) {
			t.Fatalf("anchor moved")
		}
	})
}
