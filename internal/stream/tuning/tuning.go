// Package tuning loads the streamer configuration.
package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelstream.ai/internal/stream/chunks"
	"voxelstream.ai/internal/stream/gen"
	"voxelstream.ai/internal/stream/upload"
	"voxelstream.ai/internal/voxel/octree"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("streamer.schema.json", schemaJSON)

type Config struct {
	ChunkSide  int           `yaml:"chunk_side"`
	Radii      chunks.Radii  `yaml:"radii"`
	MapSide    int           `yaml:"map_side"`
	Encoding   string        `yaml:"encoding"`
	Octuples   int           `yaml:"octuples"`
	AtlasWidth int           `yaml:"atlas_width"`
	TickRateHz int           `yaml:"tick_rate_hz"`
	Async      AsyncSpec     `yaml:"async"`
	Generator  GeneratorSpec `yaml:"generator"`
	Feed       FeedSpec      `yaml:"feed"`
}

type AsyncSpec struct {
	Enabled     bool `yaml:"enabled"`
	Workers     int  `yaml:"workers"`
	MaxInFlight int  `yaml:"max_in_flight"`
}

type GeneratorSpec struct {
	Type       string  `yaml:"type"`
	Seed       int64   `yaml:"seed"`
	Level      int     `yaml:"level"`
	BaseHeight int     `yaml:"base_height"`
	Amplitude  float32 `yaml:"amplitude"`
	Wavelength float32 `yaml:"wavelength"`
	SeaLevel   int     `yaml:"sea_level"`
}

type FeedSpec struct {
	Listen      string `yaml:"listen"`
	Queue       int    `yaml:"queue"`
	AllowRemote bool   `yaml:"allow_remote"`
}

func Defaults() Config {
	return Config{
		ChunkSide:  16,
		Radii:      chunks.Radii{X: 6, Y: 3, Z: 6},
		Encoding:   string(upload.Dense),
		Octuples:   octree.DefaultOctuples,
		TickRateHz: 30,
		Async: AsyncSpec{
			Workers:     4,
			MaxInFlight: 8,
		},
		Generator: GeneratorSpec{
			Type:       "terrain",
			Seed:       1337,
			BaseHeight: 8,
			Amplitude:  12,
			Wavelength: 48,
			SeaLevel:   4,
		},
		Feed: FeedSpec{
			Listen: "127.0.0.1:8090",
			Queue:  256,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := checkSchema(raw); err != nil {
			return cfg, fmt.Errorf("streamer.yaml: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("streamer.yaml: %w", err)
		}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("streamer.yaml: %w", err)
	}
	return cfg, nil
}

// checkSchema validates the document shape before it is decoded. YAML
// scalars go through JSON so the validator sees json.Unmarshal types.
func checkSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

// Normalize fills derived fields left at zero.
func (c *Config) Normalize() {
	if c.MapSide <= 0 {
		c.MapSide = 2*c.Radii.Max() + 1
	}
	if c.AtlasWidth <= 0 {
		if set, err := chunks.NewDisplacementSet(c.Radii); err == nil {
			c.AtlasWidth = cubeRoot(set.Len())
		}
	}
	if c.Async.Workers <= 0 {
		c.Async.Workers = 1
	}
	if c.Async.MaxInFlight <= 0 {
		c.Async.MaxInFlight = c.Async.Workers
	}
	c.Encoding = strings.ToLower(strings.TrimSpace(c.Encoding))
	c.Generator.Type = strings.ToLower(strings.TrimSpace(c.Generator.Type))
}

func (c Config) Validate() error {
	set, err := chunks.NewDisplacementSet(c.Radii)
	if err != nil {
		return err
	}
	if set.Len() >= int(chunks.EmptySlot) {
		return fmt.Errorf("radii %+v produce %d slots, limit is %d", c.Radii, set.Len(), chunks.EmptySlot-1)
	}
	if c.MapSide%2 == 0 {
		return fmt.Errorf("map_side must be odd, got %d", c.MapSide)
	}
	if c.MapSide < set.MinMapSide() {
		return fmt.Errorf("map_side %d too small for radii %+v (need >= %d)", c.MapSide, c.Radii, set.MinMapSide())
	}
	if w := c.AtlasWidth; w*w*w < set.Len() {
		return fmt.Errorf("atlas_width %d holds %d slots, need %d", w, w*w*w, set.Len())
	}
	switch upload.Mode(c.Encoding) {
	case upload.Dense:
	case upload.Sparse:
		if c.ChunkSide&(c.ChunkSide-1) != 0 {
			return fmt.Errorf("octree encoding needs a power-of-two chunk_side, got %d", c.ChunkSide)
		}
		if c.Octuples < 1 || c.Octuples > octree.MaxOctuples {
			return fmt.Errorf("octuples must be in [1,%d], got %d", octree.MaxOctuples, c.Octuples)
		}
		m := bits.TrailingZeros(uint(c.ChunkSide))
		if m < octree.MinMagnitude || m > octree.MaxMagnitude {
			return fmt.Errorf("octree encoding needs chunk_side in [%d,%d], got %d", 1<<octree.MinMagnitude, 1<<octree.MaxMagnitude, c.ChunkSide)
		}
		if need, have := octree.WorstCaseNodes(m), c.Octuples*c.Octuples*c.Octuples; have < need {
			return fmt.Errorf("octuples %d hold %d nodes, chunk_side %d can need %d", c.Octuples, have, c.ChunkSide, need)
		}
	default:
		return fmt.Errorf("unknown encoding %q", c.Encoding)
	}
	if c.ChunkSide <= 0 {
		return fmt.Errorf("chunk_side must be > 0")
	}
	if c.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if _, err := c.Generator.Build(c.ChunkSide); err != nil {
		return err
	}
	return nil
}

// SlotCount is the fixed pool capacity implied by Radii.
func (c Config) SlotCount() int {
	set, err := chunks.NewDisplacementSet(c.Radii)
	if err != nil {
		return 0
	}
	return set.Len()
}

func (c Config) UploadOptions() upload.Options {
	return upload.Options{
		Mode:       upload.Mode(c.Encoding),
		ChunkSide:  c.ChunkSide,
		Octuples:   c.Octuples,
		AtlasWidth: c.AtlasWidth,
	}
}

func (g GeneratorSpec) Build(chunkSide int) (gen.Generator, error) {
	switch g.Type {
	case "terrain", "":
		return gen.Terrain{
			Seed:       g.Seed,
			Side:       chunkSide,
			BaseHeight: g.BaseHeight,
			Amplitude:  g.Amplitude,
			Wavelength: g.Wavelength,
			SeaLevel:   g.SeaLevel,
		}, nil
	case "flat":
		return gen.Flat{Side: chunkSide, Level: g.Level}, nil
	default:
		return nil, fmt.Errorf("unknown generator type %q", g.Type)
	}
}

func cubeRoot(n int) int {
	w := 1
	for w*w*w < n {
		w++
	}
	return w
}
