package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"verdant.ai/internal/persistence/indexdb"
	persistlog "verdant.ai/internal/persistence/log"
	"verdant.ai/internal/protocol"
	"verdant.ai/internal/sim/catalogs"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
	"verdant.ai/internal/sim/terrain/store"
	"verdant.ai/internal/sim/tuning"
	"verdant.ai/internal/sim/vegetation"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "import":
		importCmd(args)
	case "gen":
		genCmd(args)
	case "log":
		logCmd(args)
	case "sectors":
		sectorsCmd(args)
	case "index":
		indexCmd(args)
	case "catalog":
		catalogCmd(args)
	case "visible":
		postSectorCmd("visible", args)
	case "release":
		postSectorCmd("release", args)
	case "pending":
		pendingCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <import|gen|log|sectors|index|catalog|visible|release|pending> [flags]")
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func terrainPath(dataDir, explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	return filepath.Join(dataDir, "terrain", "heightmaps.sqlite")
}

func loadTuning(configDir, path string) tuning.Tuning {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fail(fmt.Errorf("load tuning: %w", err))
		}
		tune = tuning.Defaults()
	}
	return tune
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbFlag := fs.String("terrain", "", "heightmap database (default: <data>/terrain/heightmaps.sqlite)")
	x := fs.Int("x", 0, "sector x")
	y := fs.Int("y", 0, "sector y")
	radius := fs.Int("radius", 0, "import every sector within this Chebyshev radius (synthetic only)")
	size := fs.Int("size", 64, "grid side length (must match chunk_size)")
	raw := fs.String("raw", "", "little-endian float32 file, size*size samples, row-major by z")
	synth := fs.String("synthetic", "", "generate a grid instead: flat|ramp|noise")
	_ = fs.Parse(args)

	if (*raw == "") == (*synth == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -raw or -synthetic is required")
		os.Exit(2)
	}
	if *raw != "" && *radius != 0 {
		fmt.Fprintln(os.Stderr, "-radius only applies to -synthetic")
		os.Exit(2)
	}

	db, err := store.OpenHeightmapDB(terrainPath(*dataDir, *dbFlag))
	if err != nil {
		fail(err)
	}
	defer db.Close()
	ctx := context.Background()

	var grids []*heightmap.Heightmap
	if *raw != "" {
		b, err := os.ReadFile(*raw)
		if err != nil {
			fail(err)
		}
		hm, err := decodeRaw(sector.New(*x, *y), *size, b)
		if err != nil {
			fail(err)
		}
		grids = append(grids, hm)
	} else {
		for dx := -*radius; dx <= *radius; dx++ {
			for dy := -*radius; dy <= *radius; dy++ {
				hm, err := synthetic(*synth, sector.New(*x+dx, *y+dy), *size)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(2)
				}
				grids = append(grids, hm)
			}
		}
	}
	for _, hm := range grids {
		if err := db.Put(ctx, hm); err != nil {
			fail(err)
		}
		lo, hi := hm.MinMax()
		fmt.Printf("imported %v size=%d min=%.3f max=%.3f\n", hm.Sector, hm.Size, lo, hi)
	}
}

func genCmd(args []string) {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	tuningPath := fs.String("tuning", "", "tuning file (default: <configs>/tuning.yaml)")
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbFlag := fs.String("terrain", "", "heightmap database (default: <data>/terrain/heightmaps.sqlite)")
	x := fs.Int("x", 0, "sector x")
	y := fs.Int("y", 0, "sector y")
	synth := fs.String("synthetic", "", "use a synthetic grid (flat|ramp|noise) instead of the database")
	asJSON := fs.Bool("json", false, "print the PLACEMENTS message")
	_ = fs.Parse(args)

	tune := loadTuning(*configDir, *tuningPath)
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fail(fmt.Errorf("load catalogs: %w", err))
	}
	logger := log.New(os.Stderr, "[admin] ", 0)
	cat := vegetation.BuildCatalog(cats.Variants.Defs, cats.Assets, logger)
	gen := vegetation.NewGenerator(cat, vegetation.Params{
		PlacementsPerSector: tune.PlacementsPerSector,
		ChunkSize:           tune.ChunkSize,
		HeightScale:         tune.HeightScale,
	})

	s := sector.New(*x, *y)
	var hm *heightmap.Heightmap
	if *synth != "" {
		hm, err = synthetic(*synth, s, tune.ChunkSize)
	} else {
		var db *store.HeightmapDB
		db, err = store.OpenHeightmapDB(terrainPath(*dataDir, *dbFlag))
		if err != nil {
			fail(err)
		}
		defer db.Close()
		hm, err = db.Get(context.Background(), s)
	}
	if err != nil {
		fail(err)
	}

	sink := &vegetation.MemorySink{}
	q := vegetation.NewQueue(gen, fixedHeights{hm}, sink, vegetation.QueueConfig{Logger: logger})
	q.Request(s)
	if st := q.Tick(context.Background()); st.Consumed != 1 {
		fail(fmt.Errorf("sector %v not generated (see log above)", s))
	}
	b := sink.Batches()[0]
	if *asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(protocol.NewPlacements(b))
		return
	}
	printSummary(os.Stdout, cat, b)
}

type fixedHeights struct{ hm *heightmap.Heightmap }

func (f fixedHeights) TryGetHeightmap(s sector.Sector) (*heightmap.Heightmap, bool) {
	if f.hm == nil || f.hm.Sector != s {
		return nil, false
	}
	return f.hm, true
}

func printSummary(w io.Writer, cat *vegetation.Catalog, b vegetation.Batch) {
	fmt.Fprintf(w, "sector %v placements=%d digest=%s catalog=%.12s\n",
		b.Sector, len(b.Placements), protocol.DigestString(b.Digest()), b.CatalogDigest)
	counts := b.VariantCounts()
	idx := make([]int, 0, len(counts))
	for i := range counts {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		name := "?"
		if v := cat.Variant(i); v != nil {
			name = v.Name
		}
		fmt.Fprintf(w, "  %-24s %d\n", name, counts[i])
	}
}

func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	file := fs.String("file", "", "one log file (default: every log under <data>/placements)")
	asJSON := fs.Bool("json", false, "print messages as JSON lines")
	_ = fs.Parse(args)

	files := []string{*file}
	if *file == "" {
		var err error
		files, err = persistlog.LogFiles(*dataDir)
		if err != nil {
			fail(err)
		}
	}
	enc := json.NewEncoder(os.Stdout)
	for _, f := range files {
		msgs, err := persistlog.ReadBatches(f)
		if err != nil {
			fail(fmt.Errorf("%s: %w", f, err))
		}
		for _, m := range msgs {
			if *asJSON {
				_ = enc.Encode(m)
				continue
			}
			fmt.Printf("%s (%d,%d) placements=%d digest=%s\n",
				filepath.Base(f), m.Sector.X, m.Sector.Y, len(m.Placements), m.Digest)
		}
	}
}

func sectorsCmd(args []string) {
	fs := flag.NewFlagSet("sectors", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbFlag := fs.String("terrain", "", "heightmap database (default: <data>/terrain/heightmaps.sqlite)")
	_ = fs.Parse(args)

	db, err := store.OpenHeightmapDB(terrainPath(*dataDir, *dbFlag))
	if err != nil {
		fail(err)
	}
	defer db.Close()
	infos, err := db.Sectors(context.Background())
	if err != nil {
		fail(err)
	}
	var total uint64
	for _, in := range infos {
		total += uint64(in.Bytes)
		fmt.Printf("%v size=%d stored=%s\n", in.Sector, in.Size, humanize.Bytes(uint64(in.Bytes)))
	}
	fmt.Printf("%d sectors, %s\n", len(infos), humanize.Bytes(total))
}

func indexCmd(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("limit", 20, "max rows")
	_ = fs.Parse(args)

	idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "sectors.sqlite"))
	if err != nil {
		fail(err)
	}
	defer idx.Close()
	recs, err := idx.RecentSectors(context.Background(), *limit)
	if err != nil {
		fail(err)
	}
	for _, r := range recs {
		fmt.Printf("%v count=%d digest=%s emits=%d %s\n",
			r.Sector, r.Count, r.Digest, r.Emits, humanize.Time(r.GeneratedAt))
	}
}

func catalogCmd(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fail(err)
	}
	cat := vegetation.BuildCatalog(cats.Variants.Defs, cats.Assets, log.New(os.Stderr, "[admin] ", 0))
	fmt.Printf("variants: %d configured, %d resolved, total weight %.2f\n",
		len(cats.Variants.Defs), cat.Len(), cat.TotalWeight())
	for i := 0; i < cat.Len(); i++ {
		v := cat.Variant(i)
		fmt.Printf("  [%d] %-24s weight=%-6g p=%.4f mesh=%s materials=%d\n",
			i, v.Name, v.Weight, v.Weight/cat.TotalWeight(), v.Mesh.ID, len(v.Materials))
	}
	fmt.Printf("assets (%d):\n", len(cats.Assets.ByPath))
	for _, p := range cats.Assets.Paths() {
		fmt.Printf("  %s\n", p)
	}
}
