package vegetation

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
)

// HeightmapProvider answers from resident data only; it never waits for a
// load. ok=false means "not ready yet".
type HeightmapProvider interface {
	TryGetHeightmap(s sector.Sector) (*heightmap.Heightmap, bool)
}

type QueueConfig struct {
	// Workers > 1 generates the sectors of one tick in parallel.
	Workers int
	// MaxPerTick caps the ready sectors handled per tick; 0 means no cap.
	MaxPerTick int
	// OnDeferred is called for each request whose heightmap is not resident.
	OnDeferred func(sector.Sector)
	Logger     *log.Logger
}

type requestState uint8

const (
	statePending requestState = iota + 1
	stateVegetated
)

// Queue holds the sector vegetation requests and drains them once per tick.
type Queue struct {
	gen     *Generator
	heights HeightmapProvider
	sink    Sink
	cfg     QueueConfig

	mu      sync.Mutex
	pending []sector.Sector
	state   map[sector.Sector]requestState
	tick    uint64
	totals  TickStats
}

type TickStats struct {
	Tick       uint64
	Ready      int
	Deferred   int
	Failed     int
	Consumed   int
	Placements int
}

func NewQueue(gen *Generator, heights HeightmapProvider, sink Sink, cfg QueueConfig) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Queue{
		gen:     gen,
		heights: heights,
		sink:    sink,
		cfg:     cfg,
		state:   map[sector.Sector]requestState{},
	}
}

// Request records that s became visible without vegetation. It reports false
// when s already has a pending request or was vegetated.
func (q *Queue) Request(s sector.Sector) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.state[s]; ok {
		return false
	}
	q.state[s] = statePending
	q.pending = append(q.pending, s)
	return true
}

// Release forgets a vegetated sector (e.g. it left visibility) so a later
// Request regenerates it. Pending requests are not affected.
func (q *Queue) Release(s sector.Sector) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state[s] != stateVegetated {
		return false
	}
	delete(q.state, s)
	return true
}

func (q *Queue) Pending() []sector.Sector {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]sector.Sector, len(q.pending))
	copy(out, q.pending)
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Vegetated(s sector.Sector) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state[s] == stateVegetated
}

type readySector struct {
	sector sector.Sector
	hm     *heightmap.Heightmap
	batch  Batch
	err    error
}

// Tick makes one pass over the pending requests in arrival order. Requests
// without a resident heightmap stay pending; the others are generated,
// emitted, and consumed only if every step succeeded.
func (q *Queue) Tick(ctx context.Context) TickStats {
	q.mu.Lock()
	q.tick++
	stats := TickStats{Tick: q.tick}
	snapshot := make([]sector.Sector, len(q.pending))
	copy(snapshot, q.pending)
	q.mu.Unlock()

	var ready []*readySector
	for _, s := range snapshot {
		hm, ok := q.heights.TryGetHeightmap(s)
		if !ok {
			stats.Deferred++
			if q.cfg.OnDeferred != nil {
				q.cfg.OnDeferred(s)
			}
			continue
		}
		// Past the cap, resident sectors wait for the next tick; the scan
		// continues so missing heightmaps still get fetched.
		if q.cfg.MaxPerTick > 0 && len(ready) >= q.cfg.MaxPerTick {
			continue
		}
		ready = append(ready, &readySector{sector: s, hm: hm})
	}
	stats.Ready = len(ready)

	q.generate(ctx, ready)

	for _, r := range ready {
		if r.err != nil {
			stats.Failed++
			logf(q.cfg.Logger, "vegetation: sector %v: %v", r.sector, r.err)
			continue
		}
		if err := q.sink.EmitBatch(r.batch); err != nil {
			stats.Failed++
			logf(q.cfg.Logger, "vegetation: sector %v: emit: %v", r.sector, err)
			continue
		}
		if q.consume(r.sector) {
			stats.Consumed++
			stats.Placements += len(r.batch.Placements)
			if c, ok := q.sink.(RequestConsumer); ok {
				c.RequestConsumed(r.sector)
			}
		}
	}

	q.mu.Lock()
	q.totals.Tick = stats.Tick
	q.totals.Ready += stats.Ready
	q.totals.Deferred += stats.Deferred
	q.totals.Failed += stats.Failed
	q.totals.Consumed += stats.Consumed
	q.totals.Placements += stats.Placements
	q.mu.Unlock()
	return stats
}

// Totals sums the stats of every tick so far; Tick is the latest tick.
func (q *Queue) Totals() TickStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totals
}

func (q *Queue) generate(ctx context.Context, ready []*readySector) {
	run := func(r *readySector) {
		if err := ctx.Err(); err != nil {
			r.err = err
			return
		}
		r.batch, r.err = q.gen.Generate(r.sector, r.hm)
	}
	if q.cfg.Workers <= 1 || len(ready) <= 1 {
		for _, r := range ready {
			run(r)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(q.cfg.Workers)
	for _, r := range ready {
		r := r
		g.Go(func() error {
			run(r)
			return nil
		})
	}
	_ = g.Wait()
}

func (q *Queue) consume(s sector.Sector) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state[s] != statePending {
		return false
	}
	for i, p := range q.pending {
		if p == s {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.state[s] = stateVegetated
	return true
}

// Run ticks every interval until ctx is done.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := q.Tick(ctx)
			if st.Consumed > 0 || st.Failed > 0 {
				logf(q.cfg.Logger, "tick=%d consumed=%d placements=%d deferred=%d failed=%d",
					st.Tick, st.Consumed, st.Placements, st.Deferred, st.Failed)
			}
		}
	}
}
