package sector

import (
	"fmt"

	"verdant.ai/internal/sim/rng"
)

// Sector addresses one terrain tile in an unbounded 2D grid.
type Sector struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func New(x, y int) Sector { return Sector{X: x, Y: y} }

// Seed is the generation seed for the sector's random stream.
func (s Sector) Seed() uint64 {
	return rng.SectorSeed(s.X, s.Y)
}

// Key packs the coordinate into a single cache/map key. Coordinates are
// truncated to 32 bits each, which covers every addressable sector.
func (s Sector) Key() uint64 {
	return uint64(uint32(int32(s.X)))<<32 | uint64(uint32(int32(s.Y)))
}

func FromKey(k uint64) Sector {
	return Sector{X: int(int32(uint32(k >> 32))), Y: int(int32(uint32(k)))}
}

func (s Sector) String() string {
	return fmt.Sprintf("(%d,%d)", s.X, s.Y)
}
