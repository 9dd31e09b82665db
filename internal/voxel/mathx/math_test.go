package mathx

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestFloorDivMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{7, 4, 1, 3},
		{-1, 4, -1, 3},
		{-4, 4, -1, 0},
		{-5, 4, -2, 3},
		{0, 32, 0, 0},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestChunkOf(t *testing.T) {
	got := ChunkOf(mgl32.Vec3{31.9, -0.5, 64}, 32)
	want := Vec3i{0, -1, 2}
	if got != want {
		t.Fatalf("ChunkOf=%v want %v", got, want)
	}
}

func TestVec3iOrdering(t *testing.T) {
	a := Vec3i{1, 0, 0}
	b := Vec3i{0, 0, 1}
	if !b.Less(a) {
		t.Fatalf("equal magnitude should break ties on x")
	}
	if !(Vec3i{}).Less(a) {
		t.Fatalf("origin should sort first")
	}
	if got := a.Add(b).Sub(Vec3i{1, 1, 1}); got != (Vec3i{0, -1, 0}) {
		t.Fatalf("add/sub: %v", got)
	}
}

func TestHash3Deterministic(t *testing.T) {
	if Hash3(7, 1, 2, 3) != Hash3(7, 1, 2, 3) {
		t.Fatalf("hash must be deterministic")
	}
	if Hash3(7, 1, 2, 3) == Hash3(8, 1, 2, 3) {
		t.Fatalf("seed should change hash")
	}
	if u := Unit(Hash2(1, 5, 9)); u < 0 || u >= 1 {
		t.Fatalf("unit out of range: %v", u)
	}
}
