package chunks

import (
	"fmt"
	"sort"

	"github.com/elliotchance/orderedmap/v2"

	"voxelstream.ai/internal/voxel/mathx"
)

// Radii are the per-axis semi-axes of the streamed neighbourhood, in chunks.
type Radii struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
	Z int `yaml:"z" json:"z"`
}

func (r Radii) Max() int {
	return max(r.X, r.Y, r.Z)
}

// Valid reports whether Σ (d_i / r_i)² <= 1. Evaluated in integers so the
// boundary is exact.
func (r Radii) Valid(d mathx.Vec3i) bool {
	rx2, ry2, rz2 := int64(r.X*r.X), int64(r.Y*r.Y), int64(r.Z*r.Z)
	dx2, dy2, dz2 := int64(d.X*d.X), int64(d.Y*d.Y), int64(d.Z*d.Z)
	return dx2*ry2*rz2+dy2*rx2*rz2+dz2*rx2*ry2 <= rx2*ry2*rz2
}

// DisplacementSet is the fixed, ordered set of admissible offsets from the
// anchor. It is immutable after construction and safe to share.
type DisplacementSet struct {
	radii   Radii
	members *orderedmap.OrderedMap[mathx.Vec3i, int]
	ordered []mathx.Vec3i
}

func NewDisplacementSet(r Radii) (*DisplacementSet, error) {
	if r.X < 1 || r.Y < 1 || r.Z < 1 {
		return nil, fmt.Errorf("displacement radii must be >= 1, got %+v", r)
	}

	var found []mathx.Vec3i
	for x := -(r.X + 1); x <= r.X+1; x++ {
		for y := -(r.Y + 1); y <= r.Y+1; y++ {
			for z := -(r.Z + 1); z <= r.Z+1; z++ {
				d := mathx.Vec3i{X: x, Y: y, Z: z}
				if r.Valid(d) {
					found = append(found, d)
				}
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Less(found[j]) })

	members := orderedmap.NewOrderedMap[mathx.Vec3i, int]()
	for i, d := range found {
		members.Set(d, i)
	}
	return &DisplacementSet{radii: r, members: members, ordered: found}, nil
}

func (s *DisplacementSet) Radii() Radii { return s.radii }
func (s *DisplacementSet) Len() int     { return len(s.ordered) }

// At returns the i-th displacement by ascending squared magnitude.
func (s *DisplacementSet) At(i int) mathx.Vec3i { return s.ordered[i] }

func (s *DisplacementSet) Contains(d mathx.Vec3i) bool {
	_, ok := s.members.Get(d)
	return ok
}

// Rank is the position of d in the ordering, or -1.
func (s *DisplacementSet) Rank(d mathx.Vec3i) int {
	if i, ok := s.members.Get(d); ok {
		return i
	}
	return -1
}

// All returns a copy of the members in order.
func (s *DisplacementSet) All() []mathx.Vec3i {
	out := make([]mathx.Vec3i, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// missing walks the set in order and yields members absent from filled.
func (s *DisplacementSet) missing(filled map[mathx.Vec3i]struct{}, fn func(mathx.Vec3i)) {
	for el := s.members.Front(); el != nil; el = el.Next() {
		if _, ok := filled[el.Key]; !ok {
			fn(el.Key)
		}
	}
}

// MinMapSide is the smallest odd index-map side covering every member.
func (s *DisplacementSet) MinMapSide() int {
	return 2*s.radii.Max() + 1
}
