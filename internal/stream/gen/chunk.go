package gen

import (
	"voxelstream.ai/internal/voxel/mathx"
)

// Generator produces the palette id of any voxel in the world.
type Generator interface {
	Voxel(x, y, z int) uint16
	ChunkSide() int
}

// Chunk is one slot's worth of generated content.
type Chunk struct {
	*Volume
	World mathx.Vec3i

	gen Generator
}

// Allocator returns the per-slot constructor for a chunk pool.
func Allocator(g Generator) func() *Chunk {
	return func() *Chunk {
		return &Chunk{Volume: NewVolume(g.ChunkSide()), gen: g}
	}
}

// Initialize regenerates the volume in place for an absolute chunk coordinate.
func (c *Chunk) Initialize(world mathx.Vec3i) {
	c.World = world
	side := c.Side()
	ox, oy, oz := world.X*side, world.Y*side, world.Z*side
	c.SetAll(func(l [3]int) uint16 {
		return c.gen.Voxel(ox+l[0], oy+l[1], oz+l[2])
	})
}
