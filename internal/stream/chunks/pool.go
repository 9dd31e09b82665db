// Package chunks keeps a fixed working set of chunk slots centred on a
// moving anchor. Slots are addressed by stable index; the index doubles
// as the upload address on the presentation side.
package chunks

import (
	"errors"
	"fmt"

	"voxelstream.ai/internal/assert"
	"voxelstream.ai/internal/voxel/mathx"
	"voxelstream.ai/internal/voxel/volume"
)

// EmptySlot marks index-map cells with no initialized chunk.
const EmptySlot uint16 = 0xFFFF

var ErrMapBounds = errors.New("chunks: index map too small for displacement radius")

// ChunkData is implemented by chunk content generators. Initialize must
// fill the receiver deterministically from an absolute chunk coordinate
// and may be expensive.
type ChunkData interface {
	Initialize(world mathx.Vec3i)
}

type slot[T ChunkData] struct {
	data        T
	world       mathx.Vec3i
	initialized bool
	dirty       bool

	// Async bookkeeping. A pending slot has a generation job writing into
	// data; epoch changes every time the slot is recycled.
	pending bool
	epoch   uint32
}

// Dirty is one drained slot.
type Dirty[T ChunkData] struct {
	Slot int
	Data T
}

// SlotInfo is a read-only view of a slot's bookkeeping.
type SlotInfo struct {
	Displacement mathx.Vec3i
	World        mathx.Vec3i
	Initialized  bool
	Dirty        bool
	Pending      bool
}

type Stats struct {
	Slots       int
	Initialized int
	Dirty       int
	Pending     int
}

// Relocation summarises one SetAnchor call.
type Relocation struct {
	From, To    mathx.Vec3i
	Invalidated []int
}

// Pool is not safe for concurrent use; see Locked.
type Pool[T ChunkData] struct {
	set    *DisplacementSet
	slots  []slot[T]
	anchor mathx.Vec3i

	mapDirty bool
}

// New allocates one slot per member of set. allocate is called exactly
// once per slot; the returned values are reused for the pool's lifetime.
func New[T ChunkData](set *DisplacementSet, anchor mathx.Vec3i, allocate func() T) *Pool[T] {
	assert.True(set.Len() < int(EmptySlot), "displacement set of %d does not fit 16-bit slot ids", set.Len())

	slots := make([]slot[T], set.Len())
	for i := range slots {
		slots[i] = slot[T]{
			data:  allocate(),
			world: anchor.Add(set.At(i)),
		}
	}
	return &Pool[T]{
		set:    set,
		slots:  slots,
		anchor: anchor,
	}
}

func (p *Pool[T]) Len() int                        { return len(p.slots) }
func (p *Pool[T]) Anchor() mathx.Vec3i             { return p.anchor }
func (p *Pool[T]) Displacements() *DisplacementSet { return p.set }

// Data returns the content of slot i regardless of its state.
func (p *Pool[T]) Data(i int) T { return p.slots[i].data }

func (p *Pool[T]) Slot(i int) SlotInfo {
	s := &p.slots[i]
	return SlotInfo{
		Displacement: s.world.Sub(p.anchor),
		World:        s.world,
		Initialized:  s.initialized,
		Dirty:        s.dirty,
		Pending:      s.pending,
	}
}

func (p *Pool[T]) Stats() Stats {
	st := Stats{Slots: len(p.slots)}
	for i := range p.slots {
		s := &p.slots[i]
		if s.initialized {
			st.Initialized++
		}
		if s.dirty {
			st.Dirty++
		}
		if s.pending {
			st.Pending++
		}
	}
	return st
}

// TryInitialize fills the uninitialized slot nearest to the anchor. At
// most one slot changes per call.
func (p *Pool[T]) TryInitialize() (int, bool) {
	i := p.nearestUninitialized()
	if i < 0 {
		return -1, false
	}
	s := &p.slots[i]
	s.data.Initialize(s.world)
	s.initialized = true
	s.dirty = true
	p.mapDirty = true
	return i, true
}

// nearestUninitialized scans linearly; ties go to the lowest index.
func (p *Pool[T]) nearestUninitialized() int {
	best, bestDist := -1, 0
	for i := range p.slots {
		s := &p.slots[i]
		if s.initialized || s.pending {
			continue
		}
		d := s.world.Sub(p.anchor).MagSq()
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// CleanDirtyChunks returns every dirty slot and clears its flag.
func (p *Pool[T]) CleanDirtyChunks() []Dirty[T] {
	var out []Dirty[T]
	for i := range p.slots {
		s := &p.slots[i]
		if !s.dirty {
			continue
		}
		s.dirty = false
		out = append(out, Dirty[T]{Slot: i, Data: s.data})
	}
	return out
}

// SetAnchor moves the anchor. Slots whose chunk falls out of range are
// invalidated and handed the displacements nobody covers any more.
func (p *Pool[T]) SetAnchor(anchor mathx.Vec3i) Relocation {
	rel := Relocation{From: p.anchor, To: anchor}
	if anchor == p.anchor {
		return rel
	}
	p.anchor = anchor
	p.mapDirty = true

	filled := make(map[mathx.Vec3i]struct{}, len(p.slots))
	for i := range p.slots {
		s := &p.slots[i]
		d := s.world.Sub(anchor)
		if p.set.Contains(d) {
			filled[d] = struct{}{}
			continue
		}
		s.initialized = false
		s.dirty = false
		s.epoch++
		rel.Invalidated = append(rel.Invalidated, i)
	}

	next := 0
	p.set.missing(filled, func(d mathx.Vec3i) {
		assert.True(next < len(rel.Invalidated), "more free displacements than invalidated slots (%d)", len(rel.Invalidated))
		p.slots[rel.Invalidated[next]].world = anchor.Add(d)
		next++
	})
	assert.True(next == len(rel.Invalidated), "invalidated %d slots but reassigned %d", len(rel.Invalidated), next)
	return rel
}

// TakeIndexMapDirty reports whether the index map changed since the last
// call and resets the flag.
func (p *Pool[T]) TakeIndexMapDirty() bool {
	d := p.mapDirty
	p.mapDirty = false
	return d
}

// IndexMap builds a cube of the given odd side, centred on the anchor,
// holding the slot index of each initialized chunk or EmptySlot.
func (p *Pool[T]) IndexMap(side int) (*volume.Grid[uint16], error) {
	if side <= 0 || side%2 == 0 {
		return nil, fmt.Errorf("%w: side %d must be odd", ErrMapBounds, side)
	}
	origin := mathx.Vec3i{X: side / 2, Y: side / 2, Z: side / 2}
	m := volume.NewFilled(side, EmptySlot)
	for i := range p.slots {
		s := &p.slots[i]
		if !s.initialized {
			continue
		}
		c := s.world.Sub(p.anchor).Add(origin).ToArray()
		if err := m.Set(c, uint16(i)); err != nil {
			return nil, fmt.Errorf("%w: slot %d displacement %v: %v", ErrMapBounds, i, s.world.Sub(p.anchor), err)
		}
	}
	return m, nil
}

// claim marks the nearest free slot pending for an async job.
func (p *Pool[T]) claim() (i int, world mathx.Vec3i, data T, epoch uint32, ok bool) {
	i = p.nearestUninitialized()
	if i < 0 {
		return -1, world, data, 0, false
	}
	s := &p.slots[i]
	s.pending = true
	return i, s.world, s.data, s.epoch, true
}

// complete releases a pending slot. The result is applied only if the
// job succeeded and the slot was not recycled in the meantime.
func (p *Pool[T]) complete(i int, epoch uint32, ok bool) bool {
	s := &p.slots[i]
	assert.True(s.pending, "completion for slot %d which has no job", i)
	s.pending = false
	if !ok || epoch != s.epoch || s.initialized {
		return false
	}
	s.initialized = true
	s.dirty = true
	p.mapDirty = true
	return true
}
