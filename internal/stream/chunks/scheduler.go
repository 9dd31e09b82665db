package chunks

import (
	"fmt"
	"log"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gammazero/deque"
	"github.com/getsentry/sentry-go"
	"github.com/sasha-s/go-deadlock"

	"voxelstream.ai/internal/voxel/mathx"
)

type completion struct {
	slot  int
	epoch uint32
	ok    bool
}

// SchedulerTick reports what one Tick did.
type SchedulerTick struct {
	Applied    int // slot index made available, or -1
	Discarded  int // stale or failed results released this tick
	Dispatched int
}

// Scheduler runs chunk generation on a worker pool so a slow generator
// never stalls the tick. Results land on a later Tick, one per call.
//
// Tick and Close must be called from the goroutine that owns the pool.
type Scheduler[T ChunkData] struct {
	pool        *Pool[T]
	workers     pond.Pool
	maxInFlight int
	inFlight    int
	log         *log.Logger

	mu   deadlock.Mutex // guards done
	done deque.Deque[completion]
}

func NewScheduler[T ChunkData](p *Pool[T], workers, maxInFlight int, logger *log.Logger) *Scheduler[T] {
	if workers <= 0 {
		workers = 1
	}
	if maxInFlight <= 0 {
		maxInFlight = workers
	}
	return &Scheduler[T]{
		pool:        p,
		workers:     pond.NewPool(workers),
		maxInFlight: maxInFlight,
		log:         logger,
	}
}

func (s *Scheduler[T]) InFlight() int { return s.inFlight }

// Tick applies at most one finished job, then tops the pipeline back up.
func (s *Scheduler[T]) Tick() SchedulerTick {
	res := SchedulerTick{Applied: -1}
	for {
		c, ok := s.pop()
		if !ok {
			break
		}
		s.inFlight--
		if s.pool.complete(c.slot, c.epoch, c.ok) {
			res.Applied = c.slot
			break
		}
		res.Discarded++
	}

	for s.inFlight < s.maxInFlight {
		i, world, data, epoch, ok := s.pool.claim()
		if !ok {
			break
		}
		s.inFlight++
		res.Dispatched++
		s.dispatch(i, world, data, epoch)
	}
	return res
}

func (s *Scheduler[T]) dispatch(i int, world mathx.Vec3i, data T, epoch uint32) {
	s.workers.Submit(func() {
		c := completion{slot: i, epoch: epoch}
		defer func() {
			if r := recover(); r != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Recover(fmt.Errorf("generate chunk %v: %v", world, r))
				hub.Flush(2 * time.Second)
				if s.log != nil {
					s.log.Printf("generate chunk %v (slot %d) panicked: %v", world, i, r)
				}
			}
			s.mu.Lock()
			s.done.PushBack(c)
			s.mu.Unlock()
		}()
		data.Initialize(world)
		c.ok = true
	})
}

func (s *Scheduler[T]) pop() (completion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done.Len() == 0 {
		return completion{}, false
	}
	return s.done.PopFront(), true
}

// Close waits for outstanding jobs and releases their slots without
// applying them.
func (s *Scheduler[T]) Close() {
	s.workers.StopAndWait()
	for {
		c, ok := s.pop()
		if !ok {
			return
		}
		s.inFlight--
		s.pool.complete(c.slot, c.epoch, false)
	}
}
