package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"verdant.ai/internal/sim/rng"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
)

func decodeRaw(s sector.Sector, size int, b []byte) (*heightmap.Heightmap, error) {
	if size <= 0 || len(b) != 4*size*size {
		return nil, fmt.Errorf("raw heightmap: %d bytes, want %d for size %d", len(b), 4*size*size, size)
	}
	samples := make([]float32, size*size)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return heightmap.New(s, size, samples)
}

// synthetic builds a normalized [0,1] grid for testing without real terrain.
func synthetic(kind string, s sector.Sector, size int) (*heightmap.Heightmap, error) {
	if size < 2 {
		return nil, fmt.Errorf("synthetic heightmap: size %d < 2", size)
	}
	samples := make([]float32, size*size)
	switch kind {
	case "flat":
		for i := range samples {
			samples[i] = 0.5
		}
	case "ramp":
		for z := 0; z < size; z++ {
			for x := 0; x < size; x++ {
				samples[z*size+x] = float32(x+z) / float32(2*(size-1))
			}
		}
	case "noise":
		r := rng.New(s.Seed())
		for i := range samples {
			samples[i] = float32(r.Float64())
		}
	default:
		return nil, fmt.Errorf("unknown synthetic kind %q (flat|ramp|noise)", kind)
	}
	return heightmap.New(s, size, samples)
}
