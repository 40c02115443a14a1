package sim

import (
	"math/rand"
	"time"
)

// Rand is the seeded random source owned by one Env. Every spawn draws from
// it so an episode is reproducible from its seed.
type Rand struct {
	rng  *rand.Rand
	seed int64
}

// NewRand creates a source with the given seed. A zero seed uses the clock.
func NewRand(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rand{rng: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed returns the seed the source was last (re)seeded with
func (r *Rand) Seed() int64 {
	return r.seed
}

// Reseed restarts the stream from seed
func (r *Rand) Reseed(seed int64) {
	r.rng.Seed(seed)
	r.seed = seed
}

// Uniform returns a value in [min, max)
func (r *Rand) Uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.rng.Float64()*(max-min)
}

// Intn returns a value in [0, n)
func (r *Rand) Intn(n int) int {
	return r.rng.Intn(n)
}

// Sign returns -1 or +1 with equal probability
func (r *Rand) Sign() int {
	if r.rng.Intn(2) == 0 {
		return -1
	}
	return 1
}
