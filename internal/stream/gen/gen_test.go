package gen

import (
	"encoding/binary"
	"testing"

	"voxelstream.ai/internal/voxel/mathx"
)

func TestFlatChunkBoundary(t *testing.T) {
	alloc := Allocator(Flat{Side: 8, Level: 3})
	c := alloc()
	if c.Solid() != 0 {
		t.Fatalf("allocated chunk must be empty")
	}

	c.Initialize(mathx.Vec3i{})
	if got, want := c.Solid(), 8*8*3; got != want {
		t.Fatalf("solid=%d want %d", got, want)
	}
	if !c.Occupied([3]int{0, 2, 0}) || c.Occupied([3]int{0, 3, 0}) {
		t.Fatalf("level boundary misplaced")
	}

	// The same instance is regenerated in place for another coordinate.
	c.Initialize(mathx.Vec3i{Y: -1})
	if c.Solid() != 8*8*8 || c.World != (mathx.Vec3i{Y: -1}) {
		t.Fatalf("below-ground chunk solid=%d world=%v", c.Solid(), c.World)
	}
	c.Initialize(mathx.Vec3i{Y: 1})
	if c.Solid() != 0 {
		t.Fatalf("sky chunk solid=%d", c.Solid())
	}
}

func TestTerrainDeterministicAndContinuous(t *testing.T) {
	tr := Terrain{Seed: 9, Side: 16, BaseHeight: 8, Amplitude: 6, Wavelength: 32}
	a, b := Allocator(tr)(), Allocator(tr)()
	a.Initialize(mathx.Vec3i{X: 2, Z: -1})
	b.Initialize(mathx.Vec3i{X: 2, Z: -1})
	for i, v := range a.Cells() {
		if b.Cells()[i] != v {
			t.Fatalf("cell %d differs between runs", i)
		}
	}

	for x := -50; x < 50; x++ {
		d := tr.Height(x+1, 7) - tr.Height(x, 7)
		if d < -3 || d > 3 {
			t.Fatalf("height jumps %d between x=%d and x=%d", d, x, x+1)
		}
	}

	h := tr.Height(5, 5)
	if tr.Voxel(5, h+1, 5) != Empty || tr.Voxel(5, h-10, 5) != Stone {
		t.Fatalf("column layering wrong around h=%d", h)
	}
}

func TestVolumeBytesLayout(t *testing.T) {
	v := NewVolume(2)
	_ = v.Set([3]int{1, 0, 0}, Grass)
	b := v.Bytes()
	if len(b) != 16 {
		t.Fatalf("len=%d", len(b))
	}
	if binary.LittleEndian.Uint16(b[0:]) != Empty || binary.LittleEndian.Uint16(b[2:]) != Grass {
		t.Fatalf("expected x-fastest little-endian cells, got % x", b[:4])
	}
}
