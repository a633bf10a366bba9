package sector

import "testing"

func TestKeyRoundTrip(t *testing.T) {
	for _, s := range []Sector{{0, 0}, {5, 5}, {-1, 0}, {0, -1}, {-1000000, 999999}} {
		if got := FromKey(s.Key()); got != s {
			t.Fatalf("FromKey(Key(%v)) = %v", s, got)
		}
	}
}

func TestKeyDistinctForNeighbours(t *testing.T) {
	seen := map[uint64]Sector{}
	for x := -3; x <= 3; x++ {
		for y := -3; y <= 3; y++ {
			s := New(x, y)
			if prev, ok := seen[s.Key()]; ok {
				t.Fatalf("key collision between %v and %v", prev, s)
			}
			seen[s.Key()] = s
		}
	}
}

func TestSeedMatchesDerivation(t *testing.T) {
	s := New(5, 5)
	want := uint64((5+1023)*1048575 + 5)
	if got := s.Seed(); got != want {
		t.Fatalf("Seed() = %d want %d", got, want)
	}
}
