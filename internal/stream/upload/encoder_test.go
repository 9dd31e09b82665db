package upload

import (
	"testing"

	"voxelstream.ai/internal/stream/gen"
	"voxelstream.ai/internal/voxel/mathx"
	"voxelstream.ai/internal/voxel/octree"
	"voxelstream.ai/internal/voxel/volume"
)

func flatChunk(side, level int, world mathx.Vec3i) *gen.Chunk {
	c := gen.Allocator(gen.Flat{Side: side, Level: level})()
	c.Initialize(world)
	return c
}

func TestDenseRoundTripAndDedupe(t *testing.T) {
	e, err := NewEncoder(Options{Mode: Dense, ChunkSide: 8, AtlasWidth: 4})
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	defer e.Close()

	c := flatChunk(8, 5, mathx.Vec3i{})
	f, ok, err := e.Encode(5, c.World, c)
	if err != nil || !ok {
		t.Fatalf("encode: ok=%v err=%v", ok, err)
	}
	if f.Origin != [3]int{8, 8, 0} {
		t.Fatalf("slot 5 in a 4-wide atlas of 8-cells starts at %v", f.Origin)
	}
	raw, err := Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cells := Cells(raw)
	for i, v := range c.Cells() {
		if cells[i] != v {
			t.Fatalf("cell %d = %d want %d", i, cells[i], v)
		}
	}

	if _, ok, _ := e.Encode(5, c.World, c); ok {
		t.Fatalf("identical content for the same slot should be skipped")
	}
	if _, ok, _ := e.Encode(6, c.World, c); !ok {
		t.Fatalf("a different slot must still upload")
	}
	c.Initialize(mathx.Vec3i{Y: -1})
	if _, ok, _ := e.Encode(5, c.World, c); !ok {
		t.Fatalf("changed content must upload")
	}
	if st := e.Stats(); st.Frames != 3 || st.Skipped != 1 {
		t.Fatalf("stats %+v", st)
	}
}

func TestSparseFrameMatchesOctree(t *testing.T) {
	e, err := NewEncoder(Options{Mode: Sparse, ChunkSide: 16, Octuples: 9, AtlasWidth: 2})
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	defer e.Close()

	c := flatChunk(16, 3, mathx.Vec3i{})
	f, ok, err := e.Encode(1, c.World, c)
	if err != nil || !ok {
		t.Fatalf("encode: ok=%v err=%v", ok, err)
	}
	if f.Side != 18 || f.Origin != [3]int{18, 0, 0} {
		t.Fatalf("side=%d origin=%v", f.Side, f.Origin)
	}
	raw, err := Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, err := octree.FromOccupancy(c, 4, 9)
	if err != nil {
		t.Fatalf("octree: %v", err)
	}
	got := Cells(raw)
	for i, cell := range want.Cells() {
		if got[i] != uint16(cell) {
			t.Fatalf("pool cell %d = %#x want %#x", i, got[i], uint16(cell))
		}
	}
	if f.Nodes != want.Nodes() {
		t.Fatalf("nodes=%d want %d", f.Nodes, want.Nodes())
	}
}

func TestSparseCapacityErrorSurfaces(t *testing.T) {
	e, err := NewEncoder(Options{Mode: Sparse, ChunkSide: 32, Octuples: 1, AtlasWidth: 1})
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	defer e.Close()
	c := flatChunk(32, 32, mathx.Vec3i{})
	if _, _, err := e.Encode(0, c.World, c); err == nil {
		t.Fatalf("a full chunk cannot fit in one octuple")
	}
}

func TestIndexMapFrame(t *testing.T) {
	e, _ := NewEncoder(Options{Mode: Dense, ChunkSide: 4, AtlasWidth: 1})
	defer e.Close()
	m := volume.NewFilled[uint16](3, 0xFFFF)
	_ = m.Set([3]int{1, 1, 1}, 7)
	f := e.EncodeIndexMap(mathx.Vec3i{X: 2}, m)
	if f.Kind != KindIndexMap || f.Side != 3 || f.World != [3]int{2, 0, 0} {
		t.Fatalf("frame header %+v", f)
	}
	raw, err := Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if Cells(raw)[13] != 7 {
		t.Fatalf("centre cell = %d", Cells(raw)[13])
	}
}

func TestEncoderRejectsBadOptions(t *testing.T) {
	if _, err := NewEncoder(Options{Mode: Sparse, ChunkSide: 24, Octuples: 9, AtlasWidth: 1}); err == nil {
		t.Fatalf("non power-of-two side accepted in octree mode")
	}
	if _, err := NewEncoder(Options{Mode: "mesh", ChunkSide: 16, AtlasWidth: 1}); err == nil {
		t.Fatalf("unknown mode accepted")
	}
}

func TestDecodeRejectsDamagedFrames(t *testing.T) {
	e, err := NewEncoder(Options{Mode: Dense, ChunkSide: 8, AtlasWidth: 4})
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	defer e.Close()
	c := flatChunk(8, 5, mathx.Vec3i{})
	f, _, err := e.Encode(0, c.World, c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	garbled := f
	garbled.Payload = []byte("not zstd")
	if _, err := Decode(garbled); err == nil {
		t.Fatalf("garbled payload accepted")
	}
	short := f
	short.RawLen++
	if _, err := Decode(short); err == nil {
		t.Fatalf("length mismatch accepted")
	}
	forged := f
	forged.Digest ^= 1
	if _, err := Decode(forged); err == nil {
		t.Fatalf("digest mismatch accepted")
	}
}
