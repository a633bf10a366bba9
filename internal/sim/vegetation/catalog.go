package vegetation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log"
	"math"
	"sort"

	"verdant.ai/internal/sim/catalogs"
)

// MaxMaterials is the number of material slots a placement carries.
const MaxMaterials = 4

type AssetResolver interface {
	Resolve(path, subObject string) (catalogs.Mesh, []catalogs.Material, error)
}

type Variant struct {
	Name      string
	Mesh      catalogs.Mesh
	Materials []catalogs.Material
	Weight    float64
}

// Catalog is the immutable, ordered set of selectable variants. It is safe to
// share between concurrent generations.
type Catalog struct {
	variants   []Variant
	cumulative []float64
	total      float64
	digest     string
}

// BuildCatalog resolves every definition through the resolver. Definitions
// that fail to resolve are logged and left out; a partially populated (or
// empty) catalog is not an error.
func BuildCatalog(defs []catalogs.VariantDef, resolver AssetResolver, logger *log.Logger) *Catalog {
	variants := make([]Variant, 0, len(defs))
	for _, d := range defs {
		if !(d.Weight > 0) {
			logf(logger, "vegetation: variant %s has non-positive weight %v; skipped", d.Name, d.Weight)
			continue
		}
		mesh, mats, err := resolver.Resolve(d.Asset, d.LOD)
		if err != nil {
			logf(logger, "vegetation: variant %s: %v; skipped", d.Name, err)
			continue
		}
		variants = append(variants, Variant{
			Name:      d.Name,
			Mesh:      mesh,
			Materials: mats,
			Weight:    d.Weight,
		})
	}
	c := NewCatalog(variants)
	if c.Empty() {
		logf(logger, "vegetation: no variant resolved (%d configured); sectors will stay bare", len(defs))
	}
	return c
}

// NewCatalog builds a catalog from already resolved variants. Variants with a
// non-positive weight are dropped and material lists are cut to MaxMaterials.
func NewCatalog(variants []Variant) *Catalog {
	c := &Catalog{}
	h := sha256.New()
	var buf [8]byte
	for _, v := range variants {
		if !(v.Weight > 0) {
			continue
		}
		if len(v.Materials) > MaxMaterials {
			v.Materials = v.Materials[:MaxMaterials]
		}
		c.total += v.Weight
		c.variants = append(c.variants, v)
		c.cumulative = append(c.cumulative, c.total)

		h.Write([]byte(v.Name))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Weight))
		h.Write(buf[:])
	}
	c.digest = hex.EncodeToString(h.Sum(nil))
	return c
}

func (c *Catalog) Len() int             { return len(c.variants) }
func (c *Catalog) Empty() bool          { return len(c.variants) == 0 }
func (c *Catalog) TotalWeight() float64 { return c.total }
func (c *Catalog) Digest() string       { return c.digest }

func (c *Catalog) Variant(i int) *Variant {
	return &c.variants[i]
}

// Select maps a draw r in [0, TotalWeight) to the first variant whose
// cumulative weight reaches r, so earlier variants win ties. A draw past the
// total (rounding) selects the last variant. Returns -1 on an empty catalog.
func (c *Catalog) Select(r float64) int {
	n := len(c.cumulative)
	if n == 0 {
		return -1
	}
	i := sort.SearchFloat64s(c.cumulative, r)
	if i >= n {
		return n - 1
	}
	return i
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
