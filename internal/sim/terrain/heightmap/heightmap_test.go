package heightmap

import (
	"errors"
	"math"
	"testing"

	"verdant.ai/internal/sim/sector"
)

func ramp(t *testing.T, size int) *Heightmap {
	t.Helper()
	samples := make([]float32, size*size)
	for i := range samples {
		samples[i] = float32(i)
	}
	h, err := New(sector.New(5, 5), size, samples)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestSampleTruncatesToLowerCorner(t *testing.T) {
	h := ramp(t, 4)
	cases := []struct {
		x, z float64
		want float64
	}{
		{0, 0, 0},
		{0.99, 0, 0},
		{1.5, 0, 1},
		{0, 1.0, 4},
		{2.7, 2.2, 10},
		{3.999, 3.999, 15},
	}
	for _, c := range cases {
		got, err := h.Sample(c.x, c.z, 1)
		if err != nil {
			t.Fatalf("Sample(%v,%v): %v", c.x, c.z, err)
		}
		if got != c.want {
			t.Fatalf("Sample(%v,%v) = %v want %v", c.x, c.z, got, c.want)
		}
	}
}

func TestSampleAppliesHeightScale(t *testing.T) {
	h := ramp(t, 4)
	got, err := h.Sample(1.2, 2.8, 2.5)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if want := 9 * 2.5; got != want {
		t.Fatalf("Sample = %v want %v", got, want)
	}
}

func TestSampleOutOfRange(t *testing.T) {
	h := ramp(t, 4)
	for _, p := range [][2]float64{{-0.01, 0}, {0, -1}, {4, 0}, {0, 4}, {math.NaN(), 1}, {1, math.Inf(1)}} {
		if _, err := h.Sample(p[0], p[1], 1); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("Sample(%v,%v) err = %v, want ErrOutOfRange", p[0], p[1], err)
		}
	}
}

func TestSampleGuardsShortSlice(t *testing.T) {
	h := &Heightmap{Size: 4, Samples: make([]float32, 3)}
	if _, err := h.Sample(1, 1, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestNewRejectsWrongSampleCount(t *testing.T) {
	if _, err := New(sector.New(0, 0), 4, make([]float32, 15)); err == nil {
		t.Fatalf("expected error for 15 samples on a 4x4 grid")
	}
	if _, err := New(sector.New(0, 0), 0, nil); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestSampleBilinear(t *testing.T) {
	h := ramp(t, 4)
	got, err := h.SampleBilinear(1.5, 1.5, 1)
	if err != nil {
		t.Fatalf("SampleBilinear: %v", err)
	}
	// cells 5,6,9,10 averaged.
	if want := 7.5; math.Abs(got-want) > 1e-9 {
		t.Fatalf("SampleBilinear = %v want %v", got, want)
	}
	edge, err := h.SampleBilinear(3.5, 3.5, 1)
	if err != nil {
		t.Fatalf("SampleBilinear edge: %v", err)
	}
	if edge != 15 {
		t.Fatalf("edge SampleBilinear = %v want 15", edge)
	}
}

func TestMinMax(t *testing.T) {
	lo, hi := ramp(t, 4).MinMax()
	if lo != 0 || hi != 15 {
		t.Fatalf("MinMax = %v,%v want 0,15", lo, hi)
	}
}
