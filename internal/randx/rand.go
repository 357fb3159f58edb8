// Package randx is a goroutine-safe random source for fuzz values.
package randx

import (
	"math/rand"
	"sync"
	"time"
)

// Source wraps math/rand with a lock. The zero value is not usable; use New.
type Source struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a source seeded with seed, or with the current time when seed is 0.
func New(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a value in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Range returns a float in [lo, hi). It returns lo when hi <= lo.
func (s *Source) Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.Float64()*(hi-lo)
}

// IntRange returns an int in [lo, hi]. It returns lo when hi <= lo.
func (s *Source) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.r.Intn(hi-lo+1)
}

// Duration returns a duration in [0, max). Non-positive max yields 0.
func (s *Source) Duration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.r.Int63n(int64(max)))
}

// Chance reports true with probability p.
func (s *Source) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float64() < p
}

// Uint64 returns a random 64-bit value.
func (s *Source) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Uint64()
}
