package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "verdant.ai/internal/persistence/log"
	"verdant.ai/internal/sim/catalogs"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/store"
	"verdant.ai/internal/sim/tuning"
	"verdant.ai/internal/sim/vegetation"
	"verdant.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml or tuning.toml (default: <configs>/tuning.yaml)")
		terrainDB  = flag.String("terrain", "", "heightmap database (default: <data>/terrain/heightmaps.sqlite)")
		disableDB  = flag.Bool("disable_db", false, "disable the generated-sector index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	cat := vegetation.BuildCatalog(cats.Variants.Defs, cats.Assets, logger)
	gen := vegetation.NewGenerator(cat, vegetation.Params{
		PlacementsPerSector: tune.PlacementsPerSector,
		ChunkSize:           tune.ChunkSize,
		HeightScale:         tune.HeightScale,
	})
	logger.Printf("catalog: %d of %d variants, total weight %.2f, digest %.12s",
		cat.Len(), len(cats.Variants.Defs), cat.TotalWeight(), cat.Digest())

	dbPath := strings.TrimSpace(*terrainDB)
	if dbPath == "" {
		dbPath = filepath.Join(*dataDir, "terrain", "heightmaps.sqlite")
	}
	heights, err := store.OpenHeightmapDB(dbPath)
	if err != nil {
		logger.Fatalf("open heightmap db: %v", err)
	}
	defer heights.Close()

	resident, err := store.NewResident(tune.HeightmapCacheBytes)
	if err != nil {
		logger.Fatalf("resident heightmaps: %v", err)
	}
	defer resident.Close()
	logger.Printf("heightmap cache %s (%s per %dx%d grid)",
		humanize.IBytes(uint64(resident.MaxBytes())),
		humanize.IBytes(uint64(tune.ChunkSize*tune.ChunkSize*4)), tune.ChunkSize, tune.ChunkSize)

	ctx, cancel := signalContext()
	defer cancel()

	streamer := store.NewStreamer(heights, resident, store.StreamerConfig{
		Workers:   tune.StreamWorkers,
		QueueSize: tune.StreamQueue,
		Logger:    logger,
	})
	streamer.Start(ctx)
	defer streamer.Close()

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalog(cat, tune); err != nil {
			logger.Printf("index backend: upsert catalog: %v", err)
		}
	}

	placementLog := persistlog.NewPlacementLogger(*dataDir)
	defer placementLog.Close()

	rt := &app{streamer: streamer, index: idx}
	rt.ws = ws.NewServer(gen, ws.RequesterFunc(func(s sector.Sector) bool { return rt.requestVisible(s) }), logger)

	sinks := vegetation.Fanout{placementLog, rt.ws}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	rt.queue = vegetation.NewQueue(gen, resident, sinks, vegetation.QueueConfig{
		Workers:    tune.Workers,
		MaxPerTick: tune.MaxPerTick,
		OnDeferred: func(s sector.Sector) { streamer.Request(s) },
		Logger:     logger,
	})
	// Sinks close in the deferred calls above; the queue must stop emitting first.
	queueDone := startQueue(ctx, rt.queue, time.Duration(tune.TickMs)*time.Millisecond)
	defer func() { <-queueDone }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metricsHandler)
	mux.HandleFunc("/v1/ws", rt.ws.Handler())

	if envBool("VERDANT_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		rt.registerAdmin(mux)
	} else {
		logger.Printf("admin endpoints disabled (VERDANT_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VERDANT_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// startQueue runs q until ctx is done. The returned channel closes once the
// last tick has returned.
func startQueue(ctx context.Context, q *vegetation.Queue, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, interval)
	}()
	return done
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
