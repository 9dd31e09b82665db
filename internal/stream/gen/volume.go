// Package gen provides chunk content generators. Each generator maps an
// absolute voxel coordinate to a palette id; Chunk binds a generator to
// a reusable palette volume so it can live in a chunk pool slot.
package gen

import (
	"encoding/binary"

	"voxelstream.ai/internal/voxel/volume"
)

// Empty marks an unoccupied voxel in a palette volume.
const Empty uint16 = 0xFFFF

const (
	Stone uint16 = iota + 1
	Dirt
	Grass
	Sand
)

// Volume is a cube of palette ids.
type Volume struct {
	*volume.Grid[uint16]
}

func NewVolume(side int) *Volume {
	return &Volume{Grid: volume.NewFilled(side, Empty)}
}

func (v *Volume) Occupied(c [3]int) bool {
	return v.At(c) != Empty
}

// Solid counts occupied voxels.
func (v *Volume) Solid() int {
	n := 0
	for _, id := range v.Cells() {
		if id != Empty {
			n++
		}
	}
	return n
}

// Bytes is the little-endian x-fastest dump used for dense uploads.
func (v *Volume) Bytes() []byte {
	cells := v.Cells()
	out := make([]byte, 2*len(cells))
	for i, id := range cells {
		binary.LittleEndian.PutUint16(out[2*i:], id)
	}
	return out
}
