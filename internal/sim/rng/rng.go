// Package rng provides the reseedable random stream used for sector generation.
//
// The stream is splitmix64: every draw advances a single 64-bit counter and
// mixes it, so the sequence for a seed is fixed across platforms and Go
// releases. A Provider is not safe for concurrent use; give each sector
// generation its own.
package rng

import "math"

const (
	seedOffset     = 1023
	seedMultiplier = 1048575

	golden = 0x9e3779b97f4a7c15
)

// SectorSeed spreads adjacent sector coordinates across the seed space:
// (x + 1023) * 1048575 + y, in wrapping unsigned 64-bit arithmetic.
func SectorSeed(x, y int) uint64 {
	return uint64(int64(x)+seedOffset)*seedMultiplier + uint64(int64(y))
}

type Provider struct {
	state uint64
}

func New(seed uint64) *Provider {
	p := &Provider{}
	p.Seed(seed)
	return p
}

// Seed replaces the whole stream state.
func (p *Provider) Seed(seed uint64) {
	p.state = seed
}

func (p *Provider) next() uint64 {
	p.state += golden
	return mix64(p.state)
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Uint64 returns the next raw value of the stream.
func (p *Provider) Uint64() uint64 {
	return p.next()
}

// Float64 returns a value in [0, 1) built from the top 53 bits of one draw.
func (p *Provider) Float64() float64 {
	return float64(p.next()>>11) * (1.0 / (1 << 53))
}

// Uniform returns a value in [0, upper).
func (p *Provider) Uniform(upper float64) float64 {
	return p.Range(0, upper)
}

// Range returns a value in [lower, upper). Rounding can push
// lower+f*(upper-lower) onto upper; such results are pulled back to the
// largest float below upper.
func (p *Provider) Range(lower, upper float64) float64 {
	v := lower + p.Float64()*(upper-lower)
	if upper > lower && v >= upper {
		v = math.Nextafter(upper, lower)
	}
	return v
}
