// Package rng provides the seedable, namespaceable pseudorandom source used
// by the simulation kernel and the module runtime.
//
// Determinism contract:
//   - A Source is fully determined by its 32-bit seed.
//   - Child(ns) derives a new Source from the parent's CURRENT state and a
//     stable hash of ns, without advancing the parent. Two children derived
//     with the same namespace from identically seeded parents produce
//     identical streams.
//
// No math/rand: the stream must be bit-stable across Go releases and must
// support cheap namespaced derivation, neither of which math/rand guarantees.
package rng

import (
	"hash/fnv"
	"math"
)

// Source is a 32-bit xorshift generator.
//
// Not safe for concurrent use. The kernel is single-threaded per patient,
// so no locking is needed.
type Source struct {
	state uint32
}

// New creates a Source from a 32-bit seed.
// A zero seed is remapped to 1 to avoid the degenerate all-zero state.
func New(seed uint32) *Source {
	if seed == 0 {
		seed = 1
	}
	return &Source{state: seed}
}

// next advances the xorshift32 state and returns it.
func (s *Source) next() uint32 {
	x := s.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.state = x
	return x
}

// Uniform returns a draw in the open interval (0,1).
// The +0.5 offset keeps the result strictly away from both endpoints.
func (s *Source) Uniform() float64 {
	return (float64(s.next()) + 0.5) / 4294967296.0
}

// Normal returns a normally distributed draw using a Box-Muller pair.
// The radial input is clamped away from zero so the log stays finite.
func (s *Source) Normal(mu, sigma float64) float64 {
	u1 := s.Uniform()
	u2 := s.Uniform()
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mu + sigma*z
}

// Expo returns an exponentially distributed draw with rate lambda.
// Non-positive rates yield +Inf (the event never fires).
func (s *Source) Expo(lambda float64) float64 {
	if lambda <= 0 {
		return math.Inf(1)
	}
	u := s.Uniform()
	return -math.Log(1-u) / lambda
}

// Child derives a namespaced Source by mixing the current state with a
// stable FNV-1a hash of the namespace. The parent state is not advanced.
func (s *Source) Child(namespace string) *Source {
	h := fnv.New32a()
	_, _ = h.Write([]byte(namespace))
	mixed := (s.state ^ h.Sum32()) * 0x9E3779B1
	return New(mixed)
}
