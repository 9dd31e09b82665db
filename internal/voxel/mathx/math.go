package mathx

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Vec3i is an integer chunk-grid coordinate or offset.
type Vec3i struct {
	X, Y, Z int
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3i) Sub(o Vec3i) Vec3i { return Vec3i{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3i) ToArray() [3]int   { return [3]int{v.X, v.Y, v.Z} }

// MagSq is the squared euclidean length.
func (v Vec3i) MagSq() int {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Less orders vectors by squared length, then x, y, z.
func (v Vec3i) Less(o Vec3i) bool {
	if a, b := v.MagSq(), o.MagSq(); a != b {
		return a < b
	}
	if v.X != o.X {
		return v.X < o.X
	}
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	return v.Z < o.Z
}

// ChunkOf returns the chunk containing a world-space position.
func ChunkOf(pos mgl32.Vec3, chunkSide int) Vec3i {
	s := float32(chunkSide)
	return Vec3i{
		X: int(math32.Floor(pos.X() / s)),
		Y: int(math32.Floor(pos.Y() / s)),
		Z: int(math32.Floor(pos.Z() / s)),
	}
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit maps a hash to [0, 1).
func Unit(h uint64) float32 {
	return float32(h>>40) / float32(1<<24)
}
