// Package native holds the deterministic randomness and sampling context
// shared by binning, boosting and merging.
//
// A Context is created from a seed and handed explicitly to every operation
// that needs randomness. It is owned by one goroutine at a time: each outer
// bag builds its own Context from its derived seed, so results do not depend
// on scheduling.
package native

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// SeedModulus bounds normalized seeds to the signed 32-bit range.
	SeedModulus = 2147483647

	// BagSeedMix is the mixing constant used to derive successive bag seeds.
	BagSeedMix int32 = 1416147523
)

// Context owns a random source and produces noise and samples from it.
type Context struct {
	seed int32
	src  *rand.PCG
	rng  *rand.Rand
}

// New creates a Context seeded with seed.
func New(seed int32) *Context {
	src := rand.NewPCG(uint64(uint32(seed)), uint64(uint32(seed))^0x9e3779b97f4a7c15)
	return &Context{seed: seed, src: src, rng: rand.New(src)}
}

// Seed returns the seed the Context was created with.
func (c *Context) Seed() int32 { return c.seed }

// Normal draws one value from N(0, sigma²).
func (c *Context) Normal(sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: c.src}.Rand()
}

// NormalVector fills a new slice of length n with N(0, sigma²) draws.
func (c *Context) NormalVector(n int, sigma float64) []float64 {
	out := make([]float64, n)
	if sigma == 0 {
		return out
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: c.src}
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// Perm returns a random permutation of [0, n).
func (c *Context) Perm(n int) []int { return c.rng.Perm(n) }

// IntN returns a uniform integer in [0, n).
func (c *Context) IntN(n int) int { return c.rng.IntN(n) }

// Float64 returns a uniform value in [0, 1).
func (c *Context) Float64() float64 { return c.rng.Float64() }

// Child derives an independent Context, advancing this one.
func (c *Context) Child() *Context {
	return New(GenerateSeed(int32(c.rng.Uint32()), BagSeedMix))
}

// NormalizeInitialSeed folds a user-supplied seed into the signed 32-bit range.
// Seeds with magnitude below 2147483647 are returned unchanged.
func NormalizeInitialSeed(seed int64) int32 {
	switch {
	case seed >= SeedModulus:
		return int32(seed % SeedModulus)
	case seed <= -SeedModulus:
		// -seed cannot overflow: math.MinInt64 % SeedModulus is computed on the
		// unsigned magnitude.
		mag := uint64(-(seed + 1)) + 1
		return -int32(mag % SeedModulus)
	default:
		return int32(seed)
	}
}

// GenerateSeed deterministically derives a new seed from seed and mix with a
// splitmix64 finalizer. The result is stable across releases of this package
// but is not bit-compatible with libebm's seed hash, so a given random_state
// does not reproduce the bags of the Python package.
func GenerateSeed(seed, mix int32) int32 {
	x := uint64(uint32(seed))<<32 | uint64(uint32(mix))
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int32(uint32(x >> 32))
}

// BagSeeds returns n seeds, the first derived from base and every next one
// from its predecessor.
func BagSeeds(base int32, n int) []int32 {
	out := make([]int32, n)
	s := base
	for i := range out {
		s = GenerateSeed(s, BagSeedMix)
		out[i] = s
	}
	return out
}
