package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"verdant.ai/internal/protocol"
	"verdant.ai/internal/sim/catalogs"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
	"verdant.ai/internal/sim/terrain/store"
	"verdant.ai/internal/sim/vegetation"
)

type mapSource map[sector.Sector]*heightmap.Heightmap

func (m mapSource) Get(_ context.Context, s sector.Sector) (*heightmap.Heightmap, error) {
	hm, ok := m[s]
	if !ok {
		return nil, fmt.Errorf("%w: %v", store.ErrNotFound, s)
	}
	return hm, nil
}

func setup(t *testing.T) (*vegetation.Generator, mapSource, []protocol.PlacementsMsg) {
	t.Helper()
	cat := vegetation.NewCatalog([]vegetation.Variant{
		{Name: "a", Mesh: catalogs.Mesh{ID: "a"}, Weight: 30},
		{Name: "b", Mesh: catalogs.Mesh{ID: "b"}, Weight: 2},
	})
	gen := vegetation.NewGenerator(cat, vegetation.Params{PlacementsPerSector: 40, ChunkSize: 8, HeightScale: 5})
	src := mapSource{}
	var msgs []protocol.PlacementsMsg
	for _, s := range []sector.Sector{sector.New(0, 0), sector.New(7, -3)} {
		samples := make([]float32, 64)
		for i := range samples {
			samples[i] = float32(i%7) * 0.1
		}
		hm, err := heightmap.New(s, 8, samples)
		if err != nil {
			t.Fatalf("heightmap.New: %v", err)
		}
		src[s] = hm
		b, err := gen.Generate(s, hm)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		msgs = append(msgs, protocol.NewPlacements(b))
	}
	return gen, src, msgs
}

func TestVerify_MatchingLog(t *testing.T) {
	gen, src, msgs := setup(t)
	var res result
	if err := verify(context.Background(), gen, src, msgs, &res); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.checked != 2 || res.skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestVerify_DetectsChangedTerrain(t *testing.T) {
	gen, src, msgs := setup(t)
	hm := src[sector.New(7, -3)]
	for i := range hm.Samples {
		hm.Samples[i] += 0.5
	}
	var res result
	err := verify(context.Background(), gen, src, msgs, &res)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("err = %v", err)
	}
}

func TestVerify_SkipsOtherCatalogAndReportsMissing(t *testing.T) {
	gen, src, msgs := setup(t)
	msgs[0].CatalogDigest = "other"
	delete(src, sector.New(7, -3))
	var res result
	err := verify(context.Background(), gen, src, msgs, &res)
	if err == nil || !strings.Contains(err.Error(), "no longer stored") {
		t.Fatalf("err = %v", err)
	}
	if res.skipped != 1 {
		t.Fatalf("skipped = %d", res.skipped)
	}
}
