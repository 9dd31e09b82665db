package gen

// Flat fills everything below Level with stone.
type Flat struct {
	Side  int
	Level int
}

func (f Flat) ChunkSide() int { return f.Side }

func (f Flat) Voxel(x, y, z int) uint16 {
	if y < f.Level {
		return Stone
	}
	return Empty
}
