package store

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
)

// Resident is the bounded in-memory heightmap set. Lookups never block on
// I/O; a miss means the sector still has to be streamed in.
type Resident struct {
	cache *ristretto.Cache[uint64, *heightmap.Heightmap]
}

func NewResident(maxBytes int64) (*Resident, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("resident: max bytes must be > 0")
	}
	// ~10 counters per expected entry, assuming 64x64 float32 grids.
	counters := max(maxBytes/(64*64*4)*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config[uint64, *heightmap.Heightmap]{
		NumCounters:        counters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("resident: %w", err)
	}
	return &Resident{cache: c}, nil
}

// Put makes hm resident. It reports false when the cache refused the entry
// (admission policy or a grid larger than the whole budget).
func (r *Resident) Put(hm *heightmap.Heightmap) bool {
	if hm == nil {
		return false
	}
	ok := r.cache.Set(hm.Sector.Key(), hm, cost(hm))
	r.cache.Wait()
	if !ok {
		return false
	}
	_, ok = r.cache.Get(hm.Sector.Key())
	return ok
}

func (r *Resident) TryGetHeightmap(s sector.Sector) (*heightmap.Heightmap, bool) {
	hm, ok := r.cache.Get(s.Key())
	if !ok || hm == nil || hm.Sector != s {
		return nil, false
	}
	return hm, true
}

func (r *Resident) Evict(s sector.Sector) {
	r.cache.Del(s.Key())
	r.cache.Wait()
}

func (r *Resident) MaxBytes() int64 { return r.cache.MaxCost() }

func (r *Resident) Close() { r.cache.Close() }

func cost(hm *heightmap.Heightmap) int64 { return int64(len(hm.Samples)) * 4 }
