package main

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/stream/tuning"
	"voxelstream.ai/internal/voxel/mathx"
)

// viewerPosition is a scripted camera: a circle of radius orbit chunks
// around the origin at a fixed height, travelled at speed chunks/second.
func viewerPosition(tick uint64, orbit, speed float64, cfg tuning.Config) mgl32.Vec3 {
	side := float32(cfg.ChunkSide)
	r := float32(orbit) * side
	y := float32(cfg.Generator.BaseHeight) + 2*side
	if r <= 0 {
		return mgl32.Vec3{0, y, 0}
	}
	dist := float32(speed) * side * float32(tick) / float32(cfg.TickRateHz)
	theta := dist / r
	return mgl32.Vec3{r * math32.Cos(theta), y, r * math32.Sin(theta)}
}

func viewerChunk(tick uint64, orbit, speed float64, cfg tuning.Config) mathx.Vec3i {
	return mathx.ChunkOf(viewerPosition(tick, orbit, speed, cfg), cfg.ChunkSide)
}
