package chunks

import (
	"github.com/sasha-s/go-deadlock"

	"voxelstream.ai/internal/voxel/mathx"
	"voxelstream.ai/internal/voxel/volume"
)

// Locked serialises every pool operation behind one mutex. Draining dirty
// chunks mutates flags, so it takes the same exclusive lock as the writers.
type Locked[T ChunkData] struct {
	mu   deadlock.Mutex
	pool *Pool[T]
}

func NewLocked[T ChunkData](p *Pool[T]) *Locked[T] {
	return &Locked[T]{pool: p}
}

func (l *Locked[T]) TryInitialize() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool.TryInitialize()
}

func (l *Locked[T]) CleanDirtyChunks() []Dirty[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool.CleanDirtyChunks()
}

func (l *Locked[T]) SetAnchor(anchor mathx.Vec3i) Relocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool.SetAnchor(anchor)
}

func (l *Locked[T]) IndexMap(side int) (*volume.Grid[uint16], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool.IndexMap(side)
}

func (l *Locked[T]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool.Stats()
}

// Do runs fn with exclusive access to the underlying pool.
func (l *Locked[T]) Do(fn func(p *Pool[T])) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.pool)
}
