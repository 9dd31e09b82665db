// Package octree encodes a dense boolean cube into a bounded pool of
// 8-way nodes ("octuples"). The pool is itself a small cube of 16-bit
// cells so it can be uploaded as a 3D texture without translation.
//
// Every octuple owns a 2×2×2 block of cells. Branch cells hold a packed
// pointer to a child octuple; the two lowest tree levels are folded into
// one octuple whose cells are 8-bit occupancy masks.
package octree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"voxelstream.ai/internal/voxel/volume"
)

const (
	// NullChild marks a cell with no child and no occupancy.
	NullChild uint16 = 0xFFFF

	// DefaultOctuples per axis gives an 18³ cell pool.
	DefaultOctuples = 9
	// MaxOctuples is the widest pool a 5-bit-per-axis pointer can address.
	MaxOctuples = 32

	MinMagnitude = 2
	MaxMagnitude = 16

	pointerBits = 5
	pointerMask = 1<<pointerBits - 1
)

var (
	ErrOutOfRange    = errors.New("octree: coordinate out of range")
	ErrPoolExhausted = errors.New("octree: node pool exhausted")
	ErrBadShape      = errors.New("octree: invalid magnitude or capacity")
)

// Octant is one pool cell: a child pointer, a leaf mask, or NullChild.
type Octant uint16

func (o Octant) IsNull() bool { return uint16(o) == NullChild }

type Tree struct {
	cells     *volume.Grid[Octant]
	octuples  int
	magnitude int
	count     int
}

// New creates an empty tree over a cube of side 2^magnitude using the
// default pool capacity.
func New(magnitude int) (*Tree, error) {
	return NewWithCapacity(magnitude, DefaultOctuples)
}

// NewWithCapacity creates an empty tree whose pool holds octuples³ nodes.
func NewWithCapacity(magnitude, octuples int) (*Tree, error) {
	if magnitude < MinMagnitude || magnitude > MaxMagnitude {
		return nil, fmt.Errorf("%w: magnitude %d not in [%d,%d]", ErrBadShape, magnitude, MinMagnitude, MaxMagnitude)
	}
	if octuples < 1 || octuples > MaxOctuples {
		return nil, fmt.Errorf("%w: %d octuples per axis not in [1,%d]", ErrBadShape, octuples, MaxOctuples)
	}
	return &Tree{
		cells:     volume.NewFilled(2*octuples, Octant(NullChild)),
		octuples:  octuples,
		magnitude: magnitude,
		count:     1, // the root octuple lives at pointer 0
	}, nil
}

func (t *Tree) Magnitude() int { return t.magnitude }

// Side is the edge length of the encoded domain.
func (t *Tree) Side() int { return 1 << t.magnitude }

// Nodes is the number of allocated octuples, root included.
func (t *Tree) Nodes() int { return t.count }

// Capacity is the maximum number of octuples.
func (t *Tree) Capacity() int { return t.octuples * t.octuples * t.octuples }

// WorstCaseNodes is the octuple count of a fully occupied cube of side
// 2^magnitude: one per branch level, 8^0 + 8^1 + ... + 8^(magnitude-2).
func WorstCaseNodes(magnitude int) int {
	n, level := 0, 1
	for k := 0; k <= magnitude-2; k++ {
		n += level
		level *= 8
	}
	return n
}

// PoolSide is the edge length of the cell pool (twice the octuples per axis).
func (t *Tree) PoolSide() int { return t.cells.Side() }

// Cells is a flat view of the pool in x-fastest order.
func (t *Tree) Cells() []Octant { return t.cells.Cells() }

// Bytes dumps the pool as little-endian uint16 cells.
func (t *Tree) Bytes() []byte {
	cells := t.cells.Cells()
	out := make([]byte, 2*len(cells))
	for i, c := range cells {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(c))
	}
	return out
}

// Insert marks the voxel at c occupied. A failed insert leaves the tree
// untouched.
func (t *Tree) Insert(c [3]int) error {
	if !volume.InCube(c, t.Side()) {
		return fmt.Errorf("%w: %v (side %d)", ErrOutOfRange, c, t.Side())
	}
	if need := t.missingBranches(c); t.count+need > t.Capacity() {
		return fmt.Errorf("%w: need %d more, %d/%d used", ErrPoolExhausted, need, t.count, t.Capacity())
	}

	var oct [3]int
	for depth := t.magnitude - 1; depth >= 2; depth-- {
		child := ChildIndex(c, depth)
		if t.child(oct, child).IsNull() {
			t.setChild(oct, child, Octant(t.allocate()))
		}
		oct = UnpackPointer(uint16(t.child(oct, child)))
	}

	child := ChildIndex(c, 1)
	mask := t.child(oct, child)
	if mask.IsNull() {
		mask = 0
	}
	mask |= 1 << ChildIndex(c, 0)
	t.setChild(oct, child, mask)
	return nil
}

// Get reports whether the voxel at c is occupied. Unallocated branches
// read as empty.
func (t *Tree) Get(c [3]int) (bool, error) {
	if !volume.InCube(c, t.Side()) {
		return false, fmt.Errorf("%w: %v (side %d)", ErrOutOfRange, c, t.Side())
	}

	var oct [3]int
	for depth := t.magnitude - 1; depth >= 2; depth-- {
		child := t.child(oct, ChildIndex(c, depth))
		if child.IsNull() {
			return false, nil
		}
		oct = UnpackPointer(uint16(child))
	}

	mask := t.child(oct, ChildIndex(c, 1))
	if mask.IsNull() {
		return false, nil
	}
	return (mask>>ChildIndex(c, 0))&1 == 1, nil
}

// missingBranches counts the octuples an insert at c would allocate.
func (t *Tree) missingBranches(c [3]int) int {
	var oct [3]int
	for depth := t.magnitude - 1; depth >= 2; depth-- {
		child := t.child(oct, ChildIndex(c, depth))
		if child.IsNull() {
			return depth - 1
		}
		oct = UnpackPointer(uint16(child))
	}
	return 0
}

func (t *Tree) allocate() uint16 {
	s := t.octuples
	loc := [3]int{
		t.count % s,
		(t.count / s) % s,
		t.count / (s * s),
	}
	t.count++
	return PackPointer(loc)
}

func (t *Tree) cellCoords(oct [3]int, child int) [3]int {
	return [3]int{
		oct[0]<<1 | child&1,
		oct[1]<<1 | (child>>1)&1,
		oct[2]<<1 | (child>>2)&1,
	}
}

func (t *Tree) child(oct [3]int, child int) Octant {
	return t.cells.At(t.cellCoords(oct, child))
}

func (t *Tree) setChild(oct [3]int, child int, v Octant) {
	_ = t.cells.Set(t.cellCoords(oct, child), v)
}

// ChildIndex takes bit depth of each axis: x → bit 0, y → bit 1, z → bit 2.
func ChildIndex(c [3]int, depth int) int {
	return (c[0]>>depth)&1 |
		((c[1]>>depth)&1)<<1 |
		((c[2]>>depth)&1)<<2
}

// PackPointer encodes octuple coordinates with 5 bits per axis.
func PackPointer(oct [3]int) uint16 {
	return uint16(oct[0]&pointerMask | (oct[1]&pointerMask)<<pointerBits | (oct[2]&pointerMask)<<(2*pointerBits))
}

func UnpackPointer(p uint16) [3]int {
	v := int(p)
	return [3]int{
		v & pointerMask,
		(v >> pointerBits) & pointerMask,
		(v >> (2 * pointerBits)) & pointerMask,
	}
}
