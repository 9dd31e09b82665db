// Package driver runs the per-tick streaming loop: follow the viewer,
// generate near chunks first, encode what changed and publish it.
package driver

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/stream/chunks"
	"voxelstream.ai/internal/stream/upload"
	"voxelstream.ai/internal/voxel/mathx"
)

// Content is a chunk payload the driver can both generate and encode.
type Content interface {
	chunks.ChunkData
	upload.Content
}

// Sink receives the frames of one tick, chunk frames before the index map.
type Sink interface {
	Publish(frames []upload.Frame)
}

// TickLog records one entry per tick.
type TickLog interface {
	WriteTick(e TickEntry) error
}

// TickEntry is enough to re-derive every published chunk: its world
// coordinate and the digest of its encoded content.
type TickEntry struct {
	Tick        uint64     `json:"tick"`
	Viewer      [3]float32 `json:"viewer"`
	Anchor      [3]int     `json:"anchor"`
	Initialized int        `json:"initialized"`
	Frames      []FrameRef `json:"frames,omitempty"`
}

type FrameRef struct {
	Kind   string `json:"kind"`
	Slot   int    `json:"slot"`
	World  [3]int `json:"world"`
	Digest uint64 `json:"digest"`
}

type Config[T Content] struct {
	Pool      *chunks.Pool[T]
	Scheduler *chunks.Scheduler[T] // nil generates inline, one slot per tick
	Encoder   *upload.Encoder
	Sink      Sink
	ChunkSide int
	MapSide   int
	TickLog   TickLog // optional
	Logger    *log.Logger
}

type TickReport struct {
	Tick        uint64
	Anchor      mathx.Vec3i
	Moved       bool
	Invalidated int
	Initialized int // slot made available this tick, or -1
	Discarded   int
	Dispatched  int
	Drained     int
	Frames      int
	Skipped     int
	IndexMap    bool
}

type Driver[T Content] struct {
	cfg  Config[T]
	tick uint64
	err  error
}

func New[T Content](cfg Config[T]) (*Driver[T], error) {
	if cfg.Pool == nil || cfg.Encoder == nil {
		return nil, errors.New("driver: pool and encoder are required")
	}
	if cfg.ChunkSide <= 0 {
		return nil, fmt.Errorf("driver: chunk side must be > 0, got %d", cfg.ChunkSide)
	}
	if cfg.MapSide < cfg.Pool.Displacements().MinMapSide() {
		return nil, fmt.Errorf("driver: map side %d below %d", cfg.MapSide, cfg.Pool.Displacements().MinMapSide())
	}
	return &Driver[T]{cfg: cfg}, nil
}

func (d *Driver[T]) Pool() *chunks.Pool[T] { return d.cfg.Pool }

// Err is the failure that stopped the driver, or nil.
func (d *Driver[T]) Err() error { return d.err }

// Tick advances the stream by one step for a viewer at world position
// viewer. A chunk that cannot be encoded or an index map that cannot be
// built stops the driver: nothing from that tick is published and every
// later Tick returns the same error. Tick log failures are returned but
// do not stop it.
func (d *Driver[T]) Tick(viewer mgl32.Vec3) (TickReport, error) {
	if d.err != nil {
		return TickReport{Tick: d.tick, Initialized: -1}, d.err
	}
	d.tick++
	p := d.cfg.Pool
	rep := TickReport{Tick: d.tick, Initialized: -1}

	rel := p.SetAnchor(mathx.ChunkOf(viewer, d.cfg.ChunkSide))
	rep.Anchor = rel.To
	rep.Moved = rel.From != rel.To
	rep.Invalidated = len(rel.Invalidated)
	if rep.Moved && d.cfg.Logger != nil {
		d.cfg.Logger.Printf("anchor %v -> %v, recycled %d slots", rel.From, rel.To, rep.Invalidated)
	}

	if d.cfg.Scheduler != nil {
		st := d.cfg.Scheduler.Tick()
		rep.Initialized = st.Applied
		rep.Discarded = st.Discarded
		rep.Dispatched = st.Dispatched
	} else if i, ok := p.TryInitialize(); ok {
		rep.Initialized = i
	}

	var frames []upload.Frame
	dirty := p.CleanDirtyChunks()
	rep.Drained = len(dirty)
	for _, c := range dirty {
		f, ok, err := d.cfg.Encoder.Encode(c.Slot, p.Slot(c.Slot).World, c.Data)
		if err != nil {
			return rep, d.fail(err)
		}
		if !ok {
			rep.Skipped++
			continue
		}
		frames = append(frames, f)
	}

	if p.TakeIndexMapDirty() {
		m, err := p.IndexMap(d.cfg.MapSide)
		if err != nil {
			return rep, d.fail(err)
		}
		frames = append(frames, d.cfg.Encoder.EncodeIndexMap(p.Anchor(), m))
		rep.IndexMap = true
	}

	rep.Frames = len(frames)
	if len(frames) > 0 && d.cfg.Sink != nil {
		d.cfg.Sink.Publish(frames)
	}
	if d.cfg.TickLog != nil {
		if err := d.cfg.TickLog.WriteTick(entry(rep, viewer, frames)); err != nil {
			return rep, fmt.Errorf("tick log: %w", err)
		}
	}
	return rep, nil
}

func (d *Driver[T]) fail(err error) error {
	d.err = fmt.Errorf("driver: tick %d: %w", d.tick, err)
	if d.cfg.Logger != nil {
		d.cfg.Logger.Printf("stopped: %v", d.err)
	}
	return d.err
}

// Close stops background generation, if any.
func (d *Driver[T]) Close() {
	if d.cfg.Scheduler != nil {
		d.cfg.Scheduler.Close()
	}
}

func entry(rep TickReport, viewer mgl32.Vec3, frames []upload.Frame) TickEntry {
	e := TickEntry{
		Tick:        rep.Tick,
		Viewer:      [3]float32(viewer),
		Anchor:      rep.Anchor.ToArray(),
		Initialized: rep.Initialized,
	}
	for _, f := range frames {
		e.Frames = append(e.Frames, FrameRef{Kind: f.Kind, Slot: f.Slot, World: f.World, Digest: f.Digest})
	}
	return e
}
