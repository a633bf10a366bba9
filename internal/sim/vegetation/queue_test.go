package vegetation

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
)

type mapHeights struct {
	mu sync.Mutex
	m  map[sector.Sector]*heightmap.Heightmap
}

func (h *mapHeights) TryGetHeightmap(s sector.Sector) (*heightmap.Heightmap, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hm, ok := h.m[s]
	return hm, ok
}

func (h *mapHeights) put(t *testing.T, s sector.Sector, size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = map[sector.Sector]*heightmap.Heightmap{}
	}
	h.m[s] = flatHeightmap(t, s, size)
}

func testQueue(heights HeightmapProvider, sink Sink, cfg QueueConfig) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	gen := NewGenerator(weighted(30, 2, 2), Params{PlacementsPerSector: 50, ChunkSize: 16, HeightScale: 1})
	return NewQueue(gen, heights, sink, cfg)
}

func TestQueue_DefersUntilHeightmapResident(t *testing.T) {
	heights := &mapHeights{}
	sink := &MemorySink{}
	var deferred []sector.Sector
	q := testQueue(heights, sink, QueueConfig{OnDeferred: func(s sector.Sector) { deferred = append(deferred, s) }})

	s := sector.New(3, 4)
	if !q.Request(s) {
		t.Fatalf("first Request returned false")
	}
	st := q.Tick(context.Background())
	if st.Deferred != 1 || st.Consumed != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if q.Len() != 1 || len(sink.Placements()) != 0 {
		t.Fatalf("deferred request changed state: len=%d placements=%d", q.Len(), len(sink.Placements()))
	}
	if len(deferred) != 1 || deferred[0] != s {
		t.Fatalf("OnDeferred calls = %v", deferred)
	}

	heights.put(t, s, 16)
	st = q.Tick(context.Background())
	if st.Consumed != 1 || st.Placements != 50 {
		t.Fatalf("stats = %+v", st)
	}
	if q.Len() != 0 || !q.Vegetated(s) {
		t.Fatalf("request not consumed")
	}
	if got := sink.Consumed(); len(got) != 1 || got[0] != s {
		t.Fatalf("RequestConsumed = %v", got)
	}
	if got := len(sink.Placements()); got != 50 {
		t.Fatalf("placements = %d", got)
	}
}

func TestQueue_DuplicateRequestIgnored(t *testing.T) {
	heights := &mapHeights{}
	q := testQueue(heights, &MemorySink{}, QueueConfig{})
	s := sector.New(0, 0)
	if !q.Request(s) || q.Request(s) {
		t.Fatalf("duplicate pending request accepted")
	}
	heights.put(t, s, 16)
	q.Tick(context.Background())
	if q.Request(s) {
		t.Fatalf("request for vegetated sector accepted")
	}
	if q.Release(sector.New(9, 9)) {
		t.Fatalf("Release of unknown sector reported true")
	}
	if !q.Release(s) {
		t.Fatalf("Release of vegetated sector reported false")
	}
	if !q.Request(s) {
		t.Fatalf("request after Release rejected")
	}
}

func TestQueue_SinkFailureKeepsRequest(t *testing.T) {
	heights := &mapHeights{}
	sink := &MemorySink{}
	sink.FailWith(errors.New("disk full"))
	q := testQueue(heights, sink, QueueConfig{})
	s := sector.New(1, 1)
	heights.put(t, s, 16)
	q.Request(s)

	st := q.Tick(context.Background())
	if st.Failed != 1 || st.Consumed != 0 || q.Len() != 1 {
		t.Fatalf("stats = %+v len=%d", st, q.Len())
	}
	if len(sink.Consumed()) != 0 {
		t.Fatalf("failed emit reported as consumed")
	}

	sink.FailWith(nil)
	st = q.Tick(context.Background())
	if st.Consumed != 1 || q.Len() != 0 {
		t.Fatalf("retry stats = %+v len=%d", st, q.Len())
	}
}

func TestQueue_GenerateErrorKeepsRequest(t *testing.T) {
	heights := &mapHeights{}
	q := testQueue(heights, &MemorySink{}, QueueConfig{})
	s := sector.New(2, 2)
	heights.put(t, s, 8) // wrong size for a 16 chunk
	q.Request(s)
	st := q.Tick(context.Background())
	if st.Failed != 1 || q.Len() != 1 || q.Vegetated(s) {
		t.Fatalf("stats = %+v len=%d", st, q.Len())
	}
}

func TestQueue_ArrivalOrderAndParallelMatchesSequential(t *testing.T) {
	sectors := []sector.Sector{sector.New(4, 1), sector.New(-2, 0), sector.New(0, 7), sector.New(3, 3), sector.New(-9, -9), sector.New(1, 2)}
	run := func(workers int) *MemorySink {
		heights := &mapHeights{}
		sink := &MemorySink{}
		q := testQueue(heights, sink, QueueConfig{Workers: workers})
		for _, s := range sectors {
			heights.put(t, s, 16)
			q.Request(s)
		}
		if st := q.Tick(context.Background()); st.Consumed != len(sectors) {
			t.Fatalf("workers=%d stats = %+v", workers, st)
		}
		return sink
	}
	seq, par := run(1), run(4)
	a, b := seq.Batches(), par.Batches()
	if len(a) != len(b) {
		t.Fatalf("batch count %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Sector != sectors[i] {
			t.Fatalf("batch %d sector %v, want arrival order %v", i, a[i].Sector, sectors[i])
		}
		if a[i].Sector != b[i].Sector || a[i].Digest() != b[i].Digest() {
			t.Fatalf("batch %d differs between sequential and parallel", i)
		}
	}
}

func TestQueue_MaxPerTick(t *testing.T) {
	heights := &mapHeights{}
	q := testQueue(heights, &MemorySink{}, QueueConfig{MaxPerTick: 2})
	for i := 0; i < 5; i++ {
		s := sector.New(i, 0)
		heights.put(t, s, 16)
		q.Request(s)
	}
	for i, want := range []int{2, 2, 1, 0} {
		if st := q.Tick(context.Background()); st.Consumed != want {
			t.Fatalf("tick %d consumed %d want %d", i, st.Consumed, want)
		}
	}
	tot := q.Totals()
	if tot.Tick != 4 || tot.Consumed != 5 || tot.Placements != 250 {
		t.Fatalf("totals = %+v", tot)
	}
}

func TestQueue_MaxPerTickStillDefersMissingHeightmaps(t *testing.T) {
	heights := &mapHeights{}
	var deferred []sector.Sector
	q := testQueue(heights, &MemorySink{}, QueueConfig{
		MaxPerTick: 1,
		OnDeferred: func(s sector.Sector) { deferred = append(deferred, s) },
	})
	a, b, c := sector.New(0, 0), sector.New(1, 0), sector.New(2, 0)
	heights.put(t, a, 16)
	heights.put(t, c, 16)
	for _, s := range []sector.Sector{a, c, b} {
		q.Request(s)
	}
	st := q.Tick(context.Background())
	if st.Ready != 1 || st.Consumed != 1 || st.Deferred != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if len(deferred) != 1 || deferred[0] != b {
		t.Fatalf("deferred = %v want [%v]", deferred, b)
	}
	if !q.Vegetated(a) || q.Vegetated(c) {
		t.Fatalf("only the first resident sector should be generated")
	}
}

func TestQueue_EmptyCatalogConsumes(t *testing.T) {
	heights := &mapHeights{}
	sink := &MemorySink{}
	gen := NewGenerator(NewCatalog(nil), Params{PlacementsPerSector: 50, ChunkSize: 16, HeightScale: 1})
	q := NewQueue(gen, heights, sink, QueueConfig{})
	s := sector.New(0, 0)
	heights.put(t, s, 16)
	q.Request(s)
	st := q.Tick(context.Background())
	if st.Consumed != 1 || st.Placements != 0 || len(sink.Placements()) != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestQueue_CanceledContextLeavesRequests(t *testing.T) {
	heights := &mapHeights{}
	q := testQueue(heights, &MemorySink{}, QueueConfig{})
	s := sector.New(0, 0)
	heights.put(t, s, 16)
	q.Request(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if st := q.Tick(ctx); st.Consumed != 0 || q.Len() != 1 {
		t.Fatalf("canceled tick consumed: %+v", st)
	}
}
