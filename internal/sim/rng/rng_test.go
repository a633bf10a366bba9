package rng

import (
	"math"
	"testing"
)

func TestSameSeedSameStream(t *testing.T) {
	a := New(SectorSeed(3, -7))
	b := New(SectorSeed(3, -7))
	for i := 0; i < 1000; i++ {
		x, y := a.Uniform(10), b.Uniform(10)
		if math.Float64bits(x) != math.Float64bits(y) {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestReseedReplacesState(t *testing.T) {
	fresh := New(42)
	want := []float64{fresh.Uniform(1), fresh.Uniform(1), fresh.Uniform(1)}

	p := New(7)
	for i := 0; i < 137; i++ {
		p.Uniform(1)
	}
	p.Seed(42)
	for i, w := range want {
		if got := p.Uniform(1); got != w {
			t.Fatalf("draw %d after reseed = %v want %v", i, got, w)
		}
	}
}

func TestRangeBounds(t *testing.T) {
	p := New(SectorSeed(0, 0))
	for i := 0; i < 100000; i++ {
		v := p.Range(0.8, 1.2)
		if v < 0.8 || v >= 1.2 {
			t.Fatalf("Range(0.8,1.2) = %v out of bounds", v)
		}
		u := p.Uniform(63)
		if u < 0 || u >= 63 {
			t.Fatalf("Uniform(63) = %v out of bounds", u)
		}
	}
}

func TestUniformZeroUpper(t *testing.T) {
	p := New(1)
	if v := p.Uniform(0); v != 0 {
		t.Fatalf("Uniform(0) = %v want 0", v)
	}
}

func TestUniformMean(t *testing.T) {
	p := New(99)
	const n = 200000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += p.Float64()
	}
	if mean := sum / n; math.Abs(mean-0.5) > 0.01 {
		t.Fatalf("mean of Float64 = %v, want ~0.5", mean)
	}
}

func TestSectorSeedSpreadsNeighbours(t *testing.T) {
	seen := map[uint64][2]int{}
	for x := -50; x <= 50; x++ {
		for y := -50; y <= 50; y++ {
			s := SectorSeed(x, y)
			if prev, ok := seen[s]; ok {
				t.Fatalf("seed collision between %v and (%d,%d)", prev, x, y)
			}
			seen[s] = [2]int{x, y}
		}
	}
}

func TestSectorSeedNegativeCoordinates(t *testing.T) {
	// x = -1023 zeroes the first term; wrapping keeps the result total.
	if got := SectorSeed(-1023, 5); got != 5 {
		t.Fatalf("SectorSeed(-1023,5) = %d want 5", got)
	}
	if got := SectorSeed(-1024, 0); got != uint64(math.MaxUint64)-1048575+1 {
		t.Fatalf("SectorSeed(-1024,0) = %d", got)
	}
}

func TestFloat64UsesTopBitsOfOneDraw(t *testing.T) {
	raw, f := New(99), New(99)
	for i := 0; i < 100; i++ {
		want := float64(raw.Uint64()>>11) / (1 << 53)
		if got := f.Float64(); got != want {
			t.Fatalf("draw %d = %v want %v", i, got, want)
		}
	}
}
