// Package upload turns drained chunk slots into frames for the
// presentation side. Each slot index maps to a fixed region of a 3D atlas,
// so a frame carries everything needed to overwrite that region.
package upload

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"voxelstream.ai/internal/voxel/mathx"
	"voxelstream.ai/internal/voxel/octree"
	"voxelstream.ai/internal/voxel/volume"
)

type Mode string

const (
	Dense  Mode = "dense"
	Sparse Mode = "octree"
)

const (
	KindChunk    = "CHUNK"
	KindIndexMap = "INDEX_MAP"
)

// Content is what a chunk slot exposes to the upload boundary.
type Content interface {
	Bytes() []byte
	Occupied(c [3]int) bool
}

type Options struct {
	Mode       Mode
	ChunkSide  int // voxels per chunk edge
	Octuples   int // octree pool octuples per axis
	AtlasWidth int // slots per atlas edge
}

// Frame is one upload unit. Payload is zstd-compressed.
type Frame struct {
	Kind    string `json:"kind"`
	Slot    int    `json:"slot"`
	World   [3]int `json:"world"`
	Origin  [3]int `json:"origin"`
	Side    int    `json:"side"`
	Nodes   int    `json:"nodes,omitempty"`
	Digest  uint64 `json:"digest"`
	RawLen  int    `json:"raw_len"`
	Payload []byte `json:"payload"`
}

type Stats struct {
	Frames    int
	Skipped   int
	RawBytes  int
	WireBytes int
}

// Encoder is owned by the tick goroutine.
type Encoder struct {
	opts      Options
	magnitude int
	zenc      *zstd.Encoder
	last      map[int]uint64
	stats     Stats
}

func NewEncoder(opts Options) (*Encoder, error) {
	if opts.ChunkSide <= 0 || opts.AtlasWidth <= 0 {
		return nil, fmt.Errorf("upload: chunk side and atlas width must be > 0")
	}
	e := &Encoder{opts: opts, last: map[int]uint64{}}
	switch opts.Mode {
	case Dense:
	case Sparse:
		m, ok := log2(opts.ChunkSide)
		if !ok {
			return nil, fmt.Errorf("upload: octree mode needs a power-of-two chunk side, got %d", opts.ChunkSide)
		}
		e.magnitude = m
	default:
		return nil, fmt.Errorf("upload: unknown mode %q", opts.Mode)
	}
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	e.zenc = zenc
	return e, nil
}

func (e *Encoder) Stats() Stats { return e.stats }

// CellSide is the atlas region edge reserved for each slot.
func (e *Encoder) CellSide() int {
	if e.opts.Mode == Sparse {
		return 2 * e.opts.Octuples
	}
	return e.opts.ChunkSide
}

// Origin is the atlas texel where slot's region starts.
func (e *Encoder) Origin(slot int) [3]int {
	c := volume.Coords(slot, e.opts.AtlasWidth)
	s := e.CellSide()
	return [3]int{c[0] * s, c[1] * s, c[2] * s}
}

// Encode builds the frame for one drained slot. ok is false when the
// atlas already holds identical bytes for this slot.
func (e *Encoder) Encode(slot int, world mathx.Vec3i, c Content) (Frame, bool, error) {
	f := Frame{
		Kind:   KindChunk,
		Slot:   slot,
		World:  world.ToArray(),
		Origin: e.Origin(slot),
		Side:   e.CellSide(),
	}

	raw, nodes, err := e.raw(c)
	if err != nil {
		return Frame{}, false, fmt.Errorf("encode slot %d (chunk %v): %w", slot, world, err)
	}
	f.Nodes = nodes

	f.Digest = xxh3.Hash(raw)
	if prev, ok := e.last[slot]; ok && prev == f.Digest {
		e.stats.Skipped++
		return Frame{}, false, nil
	}
	e.last[slot] = f.Digest
	e.seal(&f, raw)
	return f, true, nil
}

// Digest is the digest Encode would give c, without touching dedupe state.
func (e *Encoder) Digest(c Content) (uint64, error) {
	raw, _, err := e.raw(c)
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(raw), nil
}

func (e *Encoder) raw(c Content) ([]byte, int, error) {
	if e.opts.Mode != Sparse {
		return c.Bytes(), 0, nil
	}
	tree, err := octree.FromOccupancy(c, e.magnitude, e.opts.Octuples)
	if err != nil {
		return nil, 0, err
	}
	return tree.Bytes(), tree.Nodes(), nil
}

// EncodeIndexMap packs a slot index map around anchor.
func (e *Encoder) EncodeIndexMap(anchor mathx.Vec3i, m *volume.Grid[uint16]) Frame {
	cells := m.Cells()
	raw := make([]byte, 2*len(cells))
	for i, v := range cells {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	f := Frame{
		Kind:   KindIndexMap,
		Slot:   -1,
		World:  anchor.ToArray(),
		Side:   m.Side(),
		Digest: xxh3.Hash(raw),
	}
	e.seal(&f, raw)
	return f
}

func (e *Encoder) seal(f *Frame, raw []byte) {
	f.RawLen = len(raw)
	f.Payload = e.zenc.EncodeAll(raw, nil)
	e.stats.Frames++
	e.stats.RawBytes += len(raw)
	e.stats.WireBytes += len(f.Payload)
}

func (e *Encoder) Close() error {
	return e.zenc.Close()
}

func log2(n int) (int, bool) {
	m := 0
	for 1<<m < n {
		m++
	}
	return m, 1<<m == n
}
