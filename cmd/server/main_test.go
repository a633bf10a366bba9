package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"verdant.ai/internal/sim/catalogs"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
	"verdant.ai/internal/sim/vegetation"
)

type flatHeights struct{ size int }

func (h flatHeights) TryGetHeightmap(s sector.Sector) (*heightmap.Heightmap, bool) {
	hm, err := heightmap.New(s, h.size, make([]float32, h.size*h.size))
	return hm, err == nil
}

// closingSink records emits that arrive after it was closed.
type closingSink struct {
	mu     sync.Mutex
	closed bool
	emits  int
	late   int
}

func (c *closingSink) EmitBatch(vegetation.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.late++
	}
	c.emits++
	return nil
}

func (c *closingSink) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func TestStartQueue_DoneAfterLastTick(t *testing.T) {
	cat := vegetation.NewCatalog([]vegetation.Variant{{Name: "pine", Mesh: catalogs.Mesh{ID: "pine"}, Weight: 1}})
	gen := vegetation.NewGenerator(cat, vegetation.Params{PlacementsPerSector: 4, ChunkSize: 8, HeightScale: 1})
	sink := &closingSink{}
	q := vegetation.NewQueue(gen, flatHeights{size: 8}, sink, vegetation.QueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := startQueue(ctx, q, time.Millisecond)

	// Keep requests flowing so a tick is likely in flight at cancel time.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			q.Request(sector.New(i, 0))
			time.Sleep(100 * time.Microsecond)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for q.Totals().Consumed == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue never consumed a request")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("queue did not stop")
	}
	sink.Close()
	ticks := q.Totals().Tick
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	if got := q.Totals().Tick; got != ticks {
		t.Fatalf("ticked after done: %d -> %d", ticks, got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.late != 0 {
		t.Fatalf("%d emits after close", sink.late)
	}
}
