package vegetation

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"verdant.ai/internal/sim/rng"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
)

const (
	maxTilt = 0.1 * math.Pi
	maxYaw  = math.Pi

	scaleMin    = 0.8
	scaleJitter = 0.4
)

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

type Params struct {
	PlacementsPerSector int
	ChunkSize           int
	HeightScale         float64
}

type Generator struct {
	catalog *Catalog
	params  Params
}

// NewGenerator clamps a negative placement count to zero.
func NewGenerator(cat *Catalog, p Params) *Generator {
	if p.PlacementsPerSector < 0 {
		p.PlacementsPerSector = 0
	}
	return &Generator{catalog: cat, params: p}
}

func (g *Generator) Catalog() *Catalog { return g.catalog }
func (g *Generator) Params() Params    { return g.params }

// Generate produces the placements of one sector. The result depends only on
// the sector coordinate, the heightmap and the generator's fixed inputs.
// Any error discards the whole batch.
func (g *Generator) Generate(sec sector.Sector, hm *heightmap.Heightmap) (Batch, error) {
	b := Batch{Sector: sec, CatalogDigest: g.catalog.Digest()}
	if g.catalog.Empty() {
		return b, nil
	}
	if hm == nil {
		return b, fmt.Errorf("generate %v: nil heightmap", sec)
	}
	if hm.Sector != sec {
		return b, fmt.Errorf("generate %v: heightmap belongs to %v", sec, hm.Sector)
	}
	if hm.Size != g.params.ChunkSize {
		return b, fmt.Errorf("generate %v: heightmap size %d, chunk size %d", sec, hm.Size, g.params.ChunkSize)
	}

	r := rng.New(sec.Seed())
	span := float64(g.params.ChunkSize - 1)
	total := g.catalog.TotalWeight()

	b.Placements = make([]Placement, 0, g.params.PlacementsPerSector)
	for i := 0; i < g.params.PlacementsPerSector; i++ {
		// Draw order is part of the output contract.
		x := r.Uniform(span)
		z := r.Uniform(span)
		y, err := hm.Sample(x, z, g.params.HeightScale)
		if err != nil {
			return Batch{Sector: sec, CatalogDigest: b.CatalogDigest}, fmt.Errorf("generate %v: placement %d: %w", sec, i, err)
		}

		tiltX := r.Uniform(maxTilt)
		yaw := r.Uniform(maxYaw)
		tiltZ := r.Uniform(maxTilt)

		sx := r.Uniform(scaleJitter) + scaleMin
		sy := r.Uniform(scaleJitter) + scaleMin
		sz := r.Uniform(scaleJitter) + scaleMin

		vi := g.catalog.Select(r.Uniform(total))

		b.Placements = append(b.Placements, Placement{
			Sector:       sec,
			Shift:        mgl64.Vec3{x, y, z},
			Rotation:     EulerRotation(tiltX, yaw, tiltZ),
			Scale:        mgl64.Vec3{sx, sy, sz},
			VariantIndex: vi,
			Variant:      g.catalog.Variant(vi),
		})
	}
	return b, nil
}

// EulerRotation composes Rz(z)·Ry(y)·Rx(x): the x tilt is applied first, then
// yaw about the vertical axis, then the z tilt.
func EulerRotation(x, y, z float64) mgl64.Quat {
	qx := mgl64.QuatRotate(x, axisX)
	qy := mgl64.QuatRotate(y, axisY)
	qz := mgl64.QuatRotate(z, axisZ)
	return qz.Mul(qy).Mul(qx).Normalize()
}
