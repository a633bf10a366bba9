package heightmap

import (
	"errors"
	"fmt"
	"math"

	"verdant.ai/internal/sim/sector"
)

var ErrOutOfRange = errors.New("heightmap: sample position out of range")

// Heightmap is a square grid of elevation samples for one sector, stored
// row-major with z selecting the row.
type Heightmap struct {
	Sector  sector.Sector
	Size    int
	Samples []float32
}

func New(s sector.Sector, size int, samples []float32) (*Heightmap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("heightmap %v: size must be positive, got %d", s, size)
	}
	if len(samples) != size*size {
		return nil, fmt.Errorf("heightmap %v: got %d samples want %d", s, len(samples), size*size)
	}
	return &Heightmap{Sector: s, Size: size, Samples: samples}, nil
}

// Index maps a local position to its grid cell by truncating both axes
// toward the lower corner.
func (h *Heightmap) Index(x, z float64) (int, error) {
	if !h.inside(x) || !h.inside(z) || len(h.Samples) < h.Size*h.Size {
		return 0, fmt.Errorf("%w: (%v,%v) size %d", ErrOutOfRange, x, z, h.Size)
	}
	return int(z)*h.Size + int(x), nil
}

func (h *Heightmap) inside(v float64) bool {
	// NaN fails both comparisons.
	return v >= 0 && v < float64(h.Size)
}

// Sample returns the lower-corner sample of the cell holding (x, z),
// multiplied by heightScale.
func (h *Heightmap) Sample(x, z, heightScale float64) (float64, error) {
	i, err := h.Index(x, z)
	if err != nil {
		return 0, err
	}
	return float64(h.Samples[i]) * heightScale, nil
}

// SampleBilinear interpolates between the four samples around (x, z). Cells
// on the far edge reuse the edge sample.
func (h *Heightmap) SampleBilinear(x, z, heightScale float64) (float64, error) {
	if _, err := h.Index(x, z); err != nil {
		return 0, err
	}
	x0, z0 := int(x), int(z)
	x1, z1 := min(x0+1, h.Size-1), min(z0+1, h.Size-1)
	fx, fz := x-math.Floor(x), z-math.Floor(z)

	at := func(cx, cz int) float64 { return float64(h.Samples[cz*h.Size+cx]) }
	top := at(x0, z0)*(1-fx) + at(x1, z0)*fx
	bottom := at(x0, z1)*(1-fx) + at(x1, z1)*fx
	return (top*(1-fz) + bottom*fz) * heightScale, nil
}

// MinMax reports the lowest and highest raw samples.
func (h *Heightmap) MinMax() (lo, hi float32) {
	if len(h.Samples) == 0 {
		return 0, 0
	}
	lo, hi = h.Samples[0], h.Samples[0]
	for _, v := range h.Samples[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
