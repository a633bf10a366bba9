package catalogs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load configs: %v", err)
	}
	if len(c.Variants.Defs) != 4 {
		t.Fatalf("variants: got %d want 4", len(c.Variants.Defs))
	}
	if c.Variants.Defs[0].Name != "pine_002_s2" || c.Variants.Defs[0].Weight != 30 {
		t.Fatalf("first variant: %+v", c.Variants.Defs[0])
	}
	if c.Variants.Digest == "" || c.Assets.Digest == "" {
		t.Fatalf("missing digests")
	}
	for _, d := range c.Variants.Defs {
		if _, _, err := c.Assets.Resolve(d.Asset, d.LOD); err != nil {
			t.Fatalf("default variant %s does not resolve: %v", d.Name, err)
		}
	}
}

func TestParseVariants_RejectsInvalid(t *testing.T) {
	bad := map[string]string{
		"zero weight":   "variants:\n  - {name: a, asset: p, lod: l, weight: 0}\n",
		"missing lod":   "variants:\n  - {name: a, asset: p, weight: 1}\n",
		"unknown field": "variants:\n  - {name: a, asset: p, lod: l, weight: 1, color: red}\n",
		"duplicate":     "variants:\n  - {name: a, asset: p, lod: l, weight: 1}\n  - {name: a, asset: q, lod: l, weight: 1}\n",
		"not yaml":      "variants: [\n",
	}
	for name, src := range bad {
		var out VariantCatalog
		if err := parseVariants([]byte(src), &out); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseVariants_KeepsOrder(t *testing.T) {
	src := "variants:\n" +
		"  - {name: c, asset: p3, lod: l, weight: 1.5}\n" +
		"  - {name: a, asset: p1, lod: l, weight: 2}\n" +
		"  - {name: b, asset: p2, lod: l, weight: 3}\n"
	var out VariantCatalog
	if err := parseVariants([]byte(src), &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := []string{out.Defs[0].Name, out.Defs[1].Name, out.Defs[2].Name}
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("order: %v", got)
	}
	if out.Defs[0].Weight != 1.5 {
		t.Fatalf("weight: %v", out.Defs[0].Weight)
	}
}

func TestResolve_NotFound(t *testing.T) {
	var m AssetManifest
	if err := parseAssets([]byte(`[{"path":"Trees/A","objects":[{"name":"LOD0","mesh":{"id":"a0"},"materials":[{"id":"bark"}]}]}]`), &m); err != nil {
		t.Fatalf("parse: %v", err)
	}
	mesh, mats, err := m.Resolve("Trees/A", "LOD0")
	if err != nil || mesh.ID != "a0" || len(mats) != 1 {
		t.Fatalf("Resolve: mesh=%+v mats=%v err=%v", mesh, mats, err)
	}
	if _, _, err := m.Resolve("Trees/B", "LOD0"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("missing asset err = %v", err)
	}
	if _, _, err := m.Resolve("Trees/A", "LOD9"); !errors.Is(err, ErrSubObjectNotFound) {
		t.Fatalf("missing sub-object err = %v", err)
	}
}

func TestLoad_MissingManifestIsEmpty(t *testing.T) {
	dir := t.TempDir()
	src := "variants:\n  - {name: a, asset: p, lod: l, weight: 1}\n"
	if err := os.WriteFile(filepath.Join(dir, "vegetation.yaml"), []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Assets.ByPath) != 0 {
		t.Fatalf("expected empty manifest, got %d", len(c.Assets.ByPath))
	}
	if _, _, err := c.Assets.Resolve("p", "l"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("Resolve err = %v", err)
	}
}
