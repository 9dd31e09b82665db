// Package volume holds dense cubic containers addressed by 3D integer
// coordinates. Linear order is x fastest, then y, then z.
package volume

// Index linearizes coords inside a cube of the given side.
func Index(c [3]int, side int) int {
	return c[0] + c[1]*side + c[2]*side*side
}

// Coords is the inverse of Index.
func Coords(i, side int) [3]int {
	return [3]int{
		i % side,
		(i / side) % side,
		i / (side * side),
	}
}

// InCube reports whether c lies in [0, side)³.
func InCube(c [3]int, side int) bool {
	return c[0] >= 0 && c[1] >= 0 && c[2] >= 0 &&
		c[0] < side && c[1] < side && c[2] < side
}
