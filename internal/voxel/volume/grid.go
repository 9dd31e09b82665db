package volume

import (
	"errors"
	"fmt"
)

var ErrOutOfBounds = errors.New("volume: coordinate out of bounds")

// Grid is a dense cube of side³ cells.
type Grid[T any] struct {
	cells []T
	side  int
}

func New[T any](side int) *Grid[T] {
	if side < 0 {
		side = 0
	}
	return &Grid[T]{
		cells: make([]T, side*side*side),
		side:  side,
	}
}

// NewFilled allocates a grid with every cell set to v.
func NewFilled[T any](side int, v T) *Grid[T] {
	g := New[T](side)
	for i := range g.cells {
		g.cells[i] = v
	}
	return g
}

func (g *Grid[T]) Side() int { return g.side }
func (g *Grid[T]) Len() int  { return len(g.cells) }

func (g *Grid[T]) Contains(c [3]int) bool {
	return InCube(c, g.side)
}

func (g *Grid[T]) Get(c [3]int) (T, error) {
	if !g.Contains(c) {
		var zero T
		return zero, fmt.Errorf("%w: %v (side %d)", ErrOutOfBounds, c, g.side)
	}
	return g.cells[Index(c, g.side)], nil
}

func (g *Grid[T]) Set(c [3]int, v T) error {
	if !g.Contains(c) {
		return fmt.Errorf("%w: %v (side %d)", ErrOutOfBounds, c, g.side)
	}
	g.cells[Index(c, g.side)] = v
	return nil
}

// At reads a cell the caller already knows is in range.
func (g *Grid[T]) At(c [3]int) T {
	return g.cells[Index(c, g.side)]
}

// SetAll replaces every cell with f(coords).
func (g *Grid[T]) SetAll(f func(c [3]int) T) {
	for i := range g.cells {
		g.cells[i] = f(Coords(i, g.side))
	}
}

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.cells {
		g.cells[i] = v
	}
}

// Cells exposes the backing storage in linear order. Callers must not
// retain it across mutations if they expect a stable snapshot.
func (g *Grid[T]) Cells() []T {
	return g.cells
}
