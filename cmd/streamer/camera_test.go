package main

import (
	"testing"

	"voxelstream.ai/internal/stream/tuning"
)

func TestViewerPathMovesOneChunkAtATime(t *testing.T) {
	cfg := tuning.Defaults()
	cfg.Normalize()
	prev := viewerChunk(0, 3, 2, cfg)
	moves := 0
	for tick := uint64(1); tick < 2000; tick++ {
		c := viewerChunk(tick, 3, 2, cfg)
		d := c.Sub(prev)
		if d.MagSq() > 3 {
			t.Fatalf("tick %d jumped %v", tick, d)
		}
		if d.MagSq() > 0 {
			moves++
		}
		prev = c
	}
	if moves == 0 {
		t.Fatalf("viewer never crossed a chunk boundary")
	}
}

func TestViewerPathStaticWithoutOrbit(t *testing.T) {
	cfg := tuning.Defaults()
	if viewerChunk(0, 0, 1, cfg) != viewerChunk(500, 0, 1, cfg) {
		t.Fatalf("zero orbit should keep the viewer still")
	}
}
