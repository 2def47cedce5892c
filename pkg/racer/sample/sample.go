// Package sample implements the uniform random peer-sampling primitive
// (component A): reproducible subsets of the active peer set, excluding
// self, for the Echo and Ready sample draws.
package sample

import "math/rand"

// Policy selects how candidates are drawn once the pool (peers minus
// self) has been assembled. The zero value, Normal, is the default
// uniform behaviour; the other policies are an operator-facing config
// surface and every policy currently yields a uniform draw.
type Policy int

const (
	// Normal draws uniformly without replacement — the only behaviour
	// the core protocol relies on.
	Normal Policy = iota
	// Random is an alias of Normal kept for config-surface symmetry with
	// the policy names exposed by the original peer-selection config.
	Random
	// Poisson draws a uniform sample of up to twice the requested size
	// and truncates it; the result is uniform like Normal's, and peer
	// latency plays no part in the draw. It keeps the no-replacement,
	// exclude-self guarantees.
	Poisson
)

// Selector draws independent samples from the current peer set using an
// injected RNG, so tests can fix a seed.
type Selector struct {
	rng    *rand.Rand
	Policy Policy
}

// NewSelector builds a Selector around the given RNG. Passing the same
// *rand.Rand (same seed) across calls makes sampling reproducible.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng, Policy: Normal}
}

// Sample returns up to n distinct peers drawn uniformly at random from
// peers, excluding self. If n >= the number of eligible peers, every
// eligible peer is returned. The input slice is never mutated.
func (s *Selector) Sample(peers []string, n int, self string) []string {
	pool := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != self {
			pool = append(pool, p)
		}
	}
	if n >= len(pool) {
		return pool
	}
	if n <= 0 {
		return nil
	}

	switch s.Policy {
	case Poisson:
		return s.samplePoisson(pool, n)
	default:
		return s.sampleUniform(pool, n)
	}
}

// sampleUniform performs a partial Fisher-Yates shuffle and takes the
// first n elements, matching the original's shuffle-then-take selection.
func (s *Selector) sampleUniform(pool []string, n int) []string {
	shuffled := append([]string(nil), pool...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	out := make([]string, n)
	copy(out, shuffled[:n])
	return out
}

// samplePoisson oversamples the pool twice over (capped to the pool
// size) before truncating to n. The wide sample is already shuffled, so
// the first n are a uniform draw without replacement.
func (s *Selector) samplePoisson(pool []string, n int) []string {
	window := n * 2
	if window > len(pool) {
		window = len(pool)
	}
	wide := s.sampleUniform(pool, window)
	return wide[:n]
}
