package vegetation

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"

	"verdant.ai/internal/sim/sector"
)

// Placement is one generated vegetation instance. Shift is local to the
// sector with the terrain height already applied.
type Placement struct {
	Sector       sector.Sector
	Shift        mgl64.Vec3
	Rotation     mgl64.Quat
	Scale        mgl64.Vec3
	VariantIndex int
	Variant      *Variant
}

// Batch is the complete output for one sector.
type Batch struct {
	Sector        sector.Sector
	CatalogDigest string
	Placements    []Placement
}

// Digest hashes the exact bits of every placement. Two batches with equal
// digests were generated identically.
func (b Batch) Digest() uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(b.Sector.Key())
	put(uint64(len(b.Placements)))
	for _, p := range b.Placements {
		for _, f := range [...]float64{
			p.Shift[0], p.Shift[1], p.Shift[2],
			p.Rotation.W, p.Rotation.V[0], p.Rotation.V[1], p.Rotation.V[2],
			p.Scale[0], p.Scale[1], p.Scale[2],
		} {
			put(math.Float64bits(f))
		}
		put(uint64(p.VariantIndex))
	}
	return d.Sum64()
}

// VariantCounts returns how many placements use each variant index.
func (b Batch) VariantCounts() map[int]int {
	out := map[int]int{}
	for _, p := range b.Placements {
		out[p.VariantIndex]++
	}
	return out
}
