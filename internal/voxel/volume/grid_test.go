package volume

import (
	"errors"
	"testing"
)

func TestIndexCoordsBijection(t *testing.T) {
	for _, side := range []int{1, 2, 3, 7, 16} {
		seen := make([]bool, side*side*side)
		for z := 0; z < side; z++ {
			for y := 0; y < side; y++ {
				for x := 0; x < side; x++ {
					c := [3]int{x, y, z}
					i := Index(c, side)
					if i < 0 || i >= len(seen) {
						t.Fatalf("side=%d: index %d of %v out of range", side, i, c)
					}
					if seen[i] {
						t.Fatalf("side=%d: index %d produced twice", side, i)
					}
					seen[i] = true
					if got := Coords(i, side); got != c {
						t.Fatalf("side=%d: Coords(Index(%v))=%v", side, c, got)
					}
				}
			}
		}
	}
}

func TestIndexXFastest(t *testing.T) {
	if Index([3]int{1, 0, 0}, 4) != 1 || Index([3]int{0, 1, 0}, 4) != 4 || Index([3]int{0, 0, 1}, 4) != 16 {
		t.Fatalf("expected x fastest, then y, then z")
	}
}

func TestGridGetSetBounds(t *testing.T) {
	g := New[uint16](4)
	if g.Len() != 64 {
		t.Fatalf("len=%d want 64", g.Len())
	}
	if err := g.Set([3]int{3, 2, 1}, 9); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := g.Get([3]int{3, 2, 1})
	if err != nil || v != 9 {
		t.Fatalf("get=%d,%v want 9", v, err)
	}
	if g.Cells()[Index([3]int{3, 2, 1}, 4)] != 9 {
		t.Fatalf("flat view does not match")
	}
	for _, c := range [][3]int{{-1, 0, 0}, {4, 0, 0}, {0, 4, 0}, {0, 0, 4}} {
		if err := g.Set(c, 1); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("set %v: err=%v want ErrOutOfBounds", c, err)
		}
		if _, err := g.Get(c); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("get %v: err=%v want ErrOutOfBounds", c, err)
		}
	}
}

func TestGridSetAllVisitsEveryCellOnce(t *testing.T) {
	g := NewFilled[int](5, -1)
	visits := map[[3]int]int{}
	g.SetAll(func(c [3]int) int {
		visits[c]++
		return c[0] + 10*c[1] + 100*c[2]
	})
	if len(visits) != 125 {
		t.Fatalf("visited %d coords want 125", len(visits))
	}
	for c, n := range visits {
		if n != 1 {
			t.Fatalf("coord %v visited %d times", c, n)
		}
		if g.At(c) != c[0]+10*c[1]+100*c[2] {
			t.Fatalf("cell %v has wrong value", c)
		}
	}
}

func TestNewFilled(t *testing.T) {
	g := NewFilled[uint16](3, 0xFFFF)
	for i, v := range g.Cells() {
		if v != 0xFFFF {
			t.Fatalf("cell %d = %d", i, v)
		}
	}
	g.Fill(2)
	if g.At([3]int{2, 2, 2}) != 2 {
		t.Fatalf("fill did not apply")
	}
}
