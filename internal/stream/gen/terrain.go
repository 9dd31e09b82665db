package gen

import (
	"github.com/chewxy/math32"

	"voxelstream.ai/internal/voxel/mathx"
)

// Terrain is a value-noise heightfield: stone under a few layers of dirt,
// capped with grass, and sand below SeaLevel.
type Terrain struct {
	Seed       int64
	Side       int
	BaseHeight int
	Amplitude  float32
	Wavelength float32
	SeaLevel   int
}

func (t Terrain) ChunkSide() int { return t.Side }

func (t Terrain) Voxel(x, y, z int) uint16 {
	h := t.Height(x, z)
	switch {
	case y > h:
		return Empty
	case y == h && h <= t.SeaLevel:
		return Sand
	case y == h:
		return Grass
	case y > h-3:
		return Dirt
	default:
		return Stone
	}
}

// Height is the surface y of the column at (x, z).
func (t Terrain) Height(x, z int) int {
	wl := t.Wavelength
	if wl <= 0 {
		wl = 64
	}
	fx, fz := float32(x)/wl, float32(z)/wl
	n := valueNoise2(t.Seed, fx, fz) + 0.5*valueNoise2(t.Seed+1, 2*fx, 2*fz)
	return t.BaseHeight + int(math32.Floor(t.Amplitude*(n/1.5*2-1)))
}

func valueNoise2(seed int64, x, z float32) float32 {
	x0, z0 := math32.Floor(x), math32.Floor(z)
	ix, iz := int(x0), int(z0)
	tx, tz := smooth(x-x0), smooth(z-z0)

	v00 := mathx.Unit(mathx.Hash2(seed, ix, iz))
	v10 := mathx.Unit(mathx.Hash2(seed, ix+1, iz))
	v01 := mathx.Unit(mathx.Hash2(seed, ix, iz+1))
	v11 := mathx.Unit(mathx.Hash2(seed, ix+1, iz+1))

	a := v00 + (v10-v00)*tx
	b := v01 + (v11-v01)*tx
	return a + (b-a)*tz
}

func smooth(t float32) float32 {
	return t * t * (3 - 2*t)
}
