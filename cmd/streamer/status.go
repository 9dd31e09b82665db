package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sasha-s/go-deadlock"

	"voxelstream.ai/internal/stream/chunks"
	"voxelstream.ai/internal/stream/driver"
	"voxelstream.ai/internal/stream/upload"
	"voxelstream.ai/internal/transport/feed"
)

// status is the tick loop's last report, shared with the metrics handler.
type status struct {
	mu     deadlock.Mutex
	last   driver.TickReport
	pool   chunks.Stats
	upload upload.Stats
	stepMS float64
	moves  uint64
}

// record copies the tick goroutine's counters; the encoder itself is never
// read from the metrics handler.
func (s *status) record(rep driver.TickReport, pool chunks.Stats, up upload.Stats, step time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = rep
	s.pool = pool
	s.upload = up
	s.stepMS = float64(step.Microseconds()) / 1000
	if rep.Moved {
		s.moves++
	}
}

func (s *status) ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.Tick
}

func (s *status) metricsHandler(hub *feed.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		s.mu.Lock()
		rep, pool, es, stepMS, moves := s.last, s.pool, s.upload, s.stepMS, s.moves
		s.mu.Unlock()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelstream_tick Current stream tick.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_tick gauge\n")
		fmt.Fprintf(rw, "voxelstream_tick %d\n", rep.Tick)

		fmt.Fprintf(rw, "# HELP voxelstream_anchor Current anchor chunk coordinate.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_anchor gauge\n")
		fmt.Fprintf(rw, "voxelstream_anchor{axis=%q} %d\n", "x", rep.Anchor.X)
		fmt.Fprintf(rw, "voxelstream_anchor{axis=%q} %d\n", "y", rep.Anchor.Y)
		fmt.Fprintf(rw, "voxelstream_anchor{axis=%q} %d\n", "z", rep.Anchor.Z)

		fmt.Fprintf(rw, "# HELP voxelstream_slots Chunk pool slots by state.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_slots gauge\n")
		fmt.Fprintf(rw, "voxelstream_slots{state=%q} %d\n", "total", pool.Slots)
		fmt.Fprintf(rw, "voxelstream_slots{state=%q} %d\n", "initialized", pool.Initialized)
		fmt.Fprintf(rw, "voxelstream_slots{state=%q} %d\n", "dirty", pool.Dirty)
		fmt.Fprintf(rw, "voxelstream_slots{state=%q} %d\n", "pending", pool.Pending)

		fmt.Fprintf(rw, "# HELP voxelstream_anchor_moves Anchor relocations since start.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_anchor_moves counter\n")
		fmt.Fprintf(rw, "voxelstream_anchor_moves %d\n", moves)

		fmt.Fprintf(rw, "# HELP voxelstream_upload_frames Encoded frames by outcome.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_upload_frames counter\n")
		fmt.Fprintf(rw, "voxelstream_upload_frames{outcome=%q} %d\n", "sent", es.Frames)
		fmt.Fprintf(rw, "voxelstream_upload_frames{outcome=%q} %d\n", "unchanged", es.Skipped)
		fmt.Fprintf(rw, "# HELP voxelstream_upload_bytes Upload volume before and after compression.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_upload_bytes counter\n")
		fmt.Fprintf(rw, "voxelstream_upload_bytes{stage=%q} %d\n", "raw", es.RawBytes)
		fmt.Fprintf(rw, "voxelstream_upload_bytes{stage=%q} %d\n", "wire", es.WireBytes)

		fmt.Fprintf(rw, "# HELP voxelstream_feed_clients Connected feed subscribers.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_feed_clients gauge\n")
		fmt.Fprintf(rw, "voxelstream_feed_clients %d\n", hub.Clients())
		fmt.Fprintf(rw, "# HELP voxelstream_feed_dropped Subscribers disconnected for falling behind.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_feed_dropped counter\n")
		fmt.Fprintf(rw, "voxelstream_feed_dropped %d\n", hub.Dropped())

		fmt.Fprintf(rw, "# HELP voxelstream_step_ms Last tick duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_step_ms gauge\n")
		fmt.Fprintf(rw, "voxelstream_step_ms %.3f\n", stepMS)
	}
}
