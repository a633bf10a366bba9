package vegetation

import (
	"errors"
	"testing"

	"verdant.ai/internal/sim/sector"
)

func TestFanout_JoinsErrorsAndForwardsConsumed(t *testing.T) {
	ok, bad := &MemorySink{}, &MemorySink{}
	errBad := errors.New("bad sink")
	bad.FailWith(errBad)

	f := Fanout{ok, bad}
	b := Batch{Sector: sector.New(1, 2)}
	if err := f.EmitBatch(b); !errors.Is(err, errBad) {
		t.Fatalf("err = %v", err)
	}
	if len(ok.Batches()) != 1 {
		t.Fatalf("healthy sink did not receive the batch")
	}

	f.RequestConsumed(b.Sector)
	if len(ok.Consumed()) != 1 || len(bad.Consumed()) != 1 {
		t.Fatalf("RequestConsumed not forwarded")
	}
}
