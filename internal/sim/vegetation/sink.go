package vegetation

import (
	"errors"
	"sync"

	"verdant.ai/internal/sim/sector"
)

// Sink receives complete sector batches.
type Sink interface {
	EmitBatch(b Batch) error
}

// RequestConsumer is implemented by sinks that track request markers; it is
// called once per sector after its batch was accepted.
type RequestConsumer interface {
	RequestConsumed(s sector.Sector)
}

// Fanout forwards every batch to all sinks. A batch fails if any sink fails,
// which leaves the request pending and re-emits the identical batch later.
type Fanout []Sink

func (f Fanout) EmitBatch(b Batch) error {
	var errs []error
	for _, s := range f {
		if err := s.EmitBatch(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) RequestConsumed(s sector.Sector) {
	for _, sink := range f {
		if c, ok := sink.(RequestConsumer); ok {
			c.RequestConsumed(s)
		}
	}
}

// MemorySink keeps everything it receives.
type MemorySink struct {
	mu       sync.Mutex
	batches  []Batch
	consumed []sector.Sector
	fail     error
}

func (m *MemorySink) EmitBatch(b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.batches = append(m.batches, b)
	return nil
}

func (m *MemorySink) RequestConsumed(s sector.Sector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed = append(m.consumed, s)
}

// FailWith makes subsequent EmitBatch calls return err (nil to recover).
func (m *MemorySink) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MemorySink) Batches() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Batch, len(m.batches))
	copy(out, m.batches)
	return out
}

func (m *MemorySink) Consumed() []sector.Sector {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sector.Sector, len(m.consumed))
	copy(out, m.consumed)
	return out
}

// Placements flattens all received batches.
func (m *MemorySink) Placements() []Placement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Placement
	for _, b := range m.batches {
		out = append(out, b.Placements...)
	}
	return out
}
