package tuning

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	PlacementsPerSector int     `yaml:"placements_per_sector" toml:"placements_per_sector"`
	ChunkSize           int     `yaml:"chunk_size" toml:"chunk_size"`
	HeightScale         float64 `yaml:"height_scale" toml:"height_scale"`

	TickMs     int `yaml:"tick_ms" toml:"tick_ms"`
	Workers    int `yaml:"workers" toml:"workers"`
	MaxPerTick int `yaml:"max_per_tick" toml:"max_per_tick"`

	HeightmapCacheBytes int64 `yaml:"heightmap_cache_bytes" toml:"heightmap_cache_bytes"`
	StreamWorkers       int   `yaml:"stream_workers" toml:"stream_workers"`
	StreamQueue         int   `yaml:"stream_queue" toml:"stream_queue"`
}

func Defaults() Tuning {
	return Tuning{
		PlacementsPerSector: 200,
		ChunkSize:           64,
		HeightScale:         256,
		TickMs:              100,
		Workers:             1,
		HeightmapCacheBytes: 64 << 20,
		StreamWorkers:       2,
		StreamQueue:         1024,
	}
}

// Load reads tuning from YAML or TOML (chosen by extension). Fields missing
// from the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.PlacementsPerSector < 0 {
		return fmt.Errorf("placements_per_sector must be >= 0")
	}
	// Positions are drawn from [0, chunk_size-1), which is empty below 2.
	if t.ChunkSize < 2 {
		return fmt.Errorf("chunk_size must be >= 2")
	}
	if t.HeightScale < 0 {
		return fmt.Errorf("height_scale must be >= 0")
	}
	if t.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be > 0")
	}
	if t.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if t.MaxPerTick < 0 {
		return fmt.Errorf("max_per_tick must be >= 0")
	}
	if t.StreamWorkers < 1 || t.StreamQueue < 1 {
		return fmt.Errorf("stream_workers and stream_queue must be >= 1")
	}
	return nil
}
