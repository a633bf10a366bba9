package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
)

// Loader fetches a stored grid; HeightmapDB implements it.
type Loader interface {
	Get(ctx context.Context, s sector.Sector) (*heightmap.Heightmap, error)
}

type StreamerConfig struct {
	Workers   int
	QueueSize int
	// MissRetry is how long a sector without stored data is ignored before
	// it may be looked up again.
	MissRetry time.Duration
	Logger    *log.Logger
}

type StreamStats struct {
	Loaded  uint64
	Missing uint64
	Failed  uint64
	Dropped uint64
}

// Streamer loads requested sectors into a Resident set in the background.
type Streamer struct {
	src Loader
	res *Resident
	cfg StreamerConfig

	mu       sync.Mutex
	inflight map[sector.Sector]struct{}
	missing  map[sector.Sector]time.Time
	closed   bool
	ch       chan sector.Sector

	wg   sync.WaitGroup
	once sync.Once

	loaded  atomic.Uint64
	misses  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func NewStreamer(src Loader, res *Resident, cfg StreamerConfig) *Streamer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1024
	}
	if cfg.MissRetry <= 0 {
		cfg.MissRetry = 5 * time.Second
	}
	return &Streamer{
		src:      src,
		res:      res,
		cfg:      cfg,
		inflight: map[sector.Sector]struct{}{},
		missing:  map[sector.Sector]time.Time{},
		ch:       make(chan sector.Sector, cfg.QueueSize),
	}
}

func (s *Streamer) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx)
		}()
	}
}

// Request schedules a load and never blocks. It reports whether a new load
// was queued.
func (s *Streamer) Request(sec sector.Sector) bool {
	if _, ok := s.res.TryGetHeightmap(sec); ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.inflight[sec]; ok {
		return false
	}
	if at, ok := s.missing[sec]; ok {
		if time.Since(at) < s.cfg.MissRetry {
			return false
		}
		delete(s.missing, sec)
	}
	select {
	case s.ch <- sec:
		s.inflight[sec] = struct{}{}
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Streamer) Stats() StreamStats {
	return StreamStats{
		Loaded:  s.loaded.Load(),
		Missing: s.misses.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Close stops accepting requests and waits for the workers to drain.
func (s *Streamer) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Streamer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sec, ok := <-s.ch:
			if !ok {
				return
			}
			s.load(ctx, sec)
		}
	}
}

func (s *Streamer) load(ctx context.Context, sec sector.Sector) {
	hm, err := s.src.Get(ctx, sec)
	switch {
	case err == nil:
		if s.res.Put(hm) {
			s.loaded.Add(1)
		} else {
			s.failed.Add(1)
			logf(s.cfg.Logger, "stream: sector %v: rejected by resident set", sec)
		}
	case errors.Is(err, ErrNotFound):
		s.misses.Add(1)
	default:
		s.failed.Add(1)
		logf(s.cfg.Logger, "stream: sector %v: %v", sec, err)
	}

	s.mu.Lock()
	delete(s.inflight, sec)
	if errors.Is(err, ErrNotFound) {
		s.missing[sec] = time.Now()
	}
	s.mu.Unlock()
}

func logf(l *log.Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}
