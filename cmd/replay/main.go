package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	persistlog "verdant.ai/internal/persistence/log"
	"verdant.ai/internal/protocol"
	"verdant.ai/internal/sim/catalogs"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
	"verdant.ai/internal/sim/terrain/store"
	"verdant.ai/internal/sim/tuning"
	"verdant.ai/internal/sim/vegetation"
)

// replay regenerates every sector found in the placement logs and checks that
// the digests match what was emitted.
func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		file       = flag.String("file", "", "one placement log (default: every log under <data>/placements)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "tuning file (default: <configs>/tuning.yaml)")
		terrainDB  = flag.String("terrain", "", "heightmap database (default: <data>/terrain/heightmaps.sqlite)")
	)
	flag.Parse()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	cat := vegetation.BuildCatalog(cats.Variants.Defs, cats.Assets, log.New(os.Stderr, "[replay] ", 0))
	gen := vegetation.NewGenerator(cat, vegetation.Params{
		PlacementsPerSector: tune.PlacementsPerSector,
		ChunkSize:           tune.ChunkSize,
		HeightScale:         tune.HeightScale,
	})

	dbPath := strings.TrimSpace(*terrainDB)
	if dbPath == "" {
		dbPath = filepath.Join(*dataDir, "terrain", "heightmaps.sqlite")
	}
	db, err := store.OpenHeightmapDB(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open heightmap db:", err)
		os.Exit(1)
	}
	defer db.Close()

	files := []string{*file}
	if *file == "" {
		files, err = persistlog.LogFiles(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list logs:", err)
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no placement logs found")
		os.Exit(1)
	}

	var res result
	for _, path := range files {
		msgs, err := persistlog.ReadBatches(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
		if err := verify(context.Background(), gen, db, msgs, &res); err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d skipped=%d (catalog %.12s)\n", res.checked, res.skipped, cat.Digest())
}

type result struct {
	checked int
	skipped int
}

type heightSource interface {
	Get(ctx context.Context, s sector.Sector) (*heightmap.Heightmap, error)
}

// verify regenerates each logged batch. Batches written under another catalog
// are skipped; a missing heightmap or a digest mismatch is an error.
func verify(ctx context.Context, gen *vegetation.Generator, heights heightSource, msgs []protocol.PlacementsMsg, res *result) error {
	for _, m := range msgs {
		if m.CatalogDigest != gen.Catalog().Digest() {
			res.skipped++
			continue
		}
		s := sector.New(m.Sector.X, m.Sector.Y)
		hm, err := heights.Get(ctx, s)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("sector %v: heightmap no longer stored", s)
		}
		if err != nil {
			return err
		}
		b, err := gen.Generate(s, hm)
		if err != nil {
			return fmt.Errorf("sector %v: %w", s, err)
		}
		if got := protocol.DigestString(b.Digest()); got != m.Digest {
			return fmt.Errorf("digest mismatch at sector %v: got=%s want=%s", s, got, m.Digest)
		}
		res.checked++
	}
	return nil
}
