package octree

// Occupancy is any dense cubic occupancy source.
type Occupancy interface {
	Occupied(c [3]int) bool
}

// OccupancyFunc adapts a plain function to Occupancy.
type OccupancyFunc func(c [3]int) bool

func (f OccupancyFunc) Occupied(c [3]int) bool { return f(c) }

// FromOccupancy inserts every occupied voxel of a 2^magnitude cube.
func FromOccupancy(o Occupancy, magnitude, octuples int) (*Tree, error) {
	t, err := NewWithCapacity(magnitude, octuples)
	if err != nil {
		return nil, err
	}
	side := t.Side()
	for z := 0; z < side; z++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				c := [3]int{x, y, z}
				if !o.Occupied(c) {
					continue
				}
				if err := t.Insert(c); err != nil {
					return nil, err
				}
			}
		}
	}
	return t, nil
}
