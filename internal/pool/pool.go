// Package pool selects an eligible worker for a target location.
package pool

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"clairvoyance/internal/worker"
)

// Policy selects how the pool walks its workers.
type Policy int

const (
	// Greedy rotates through all workers, spreading usage evenly.
	Greedy Policy = iota
	// Conservative always starts at the first worker so that later
	// accounts are only touched when earlier ones are unavailable.
	Conservative
)

func (p Policy) String() string {
	if p == Conservative {
		return "conservative"
	}
	return "greedy"
}

// ParsePolicy maps a config value to a Policy. Empty selects Greedy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "greedy":
		return Greedy, nil
	case "conservative":
		return Conservative, nil
	default:
		return Greedy, fmt.Errorf("unknown allocation policy %q", s)
	}
}

// Candidate is the subset of worker behaviour allocation depends on.
type Candidate interface {
	IsFree() bool
	HasSatisfiedScanDelay() bool
	CanMoveTo(lat, long float64) bool
	TryReserve() bool
}

// Pool holds the fleet. The worker list never changes after New.
type Pool struct {
	workers []*worker.Worker
	policy  Policy

	mu       sync.Mutex
	cursor   int
	failures atomic.Uint64
}

func New(workers []*worker.Worker, policy Policy) *Pool {
	return &Pool{workers: workers, policy: policy}
}

func (p *Pool) Policy() Policy { return p.policy }

// Workers returns the fleet in allocation order.
func (p *Pool) Workers() []*worker.Worker { return p.workers }

func (p *Pool) Len() int { return len(p.workers) }

// AllocationFailures counts lookups that found no eligible worker.
func (p *Pool) AllocationFailures() uint64 { return p.failures.Load() }

// GetWorkerThatCanWalkTo returns the first eligible worker for (lat, long),
// or nil when none qualifies. A nil result is not an error: the caller drops
// the activation.
func (p *Pool) GetWorkerThatCanWalkTo(lat, long float64) *worker.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectLocked(lat, long, false)
}

// Acquire selects and reserves a worker in one step so that two callers can
// never be handed the same worker.
func (p *Pool) Acquire(lat, long float64) *worker.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectLocked(lat, long, true)
}

func (p *Pool) selectLocked(lat, long float64, reserve bool) *worker.Worker {
	n := len(p.workers)
	if n == 0 {
		p.failures.Add(1)
		return nil
	}
	start := 0
	if p.Policy() == Greedy {
		start = p.cursor
	}
	for k := 0; k < n; k++ {
		i := (start + k) % n
		w := p.workers[i]
		if !eligible(w, lat, long) {
			continue
		}
		if reserve && !w.TryReserve() {
			continue
		}
		// Advance past the match so the next greedy lookup starts with a
		// different worker.
		p.cursor = (i + 1) % n
		return w
	}
	p.failures.Add(1)
	return nil
}

func eligible(c Candidate, lat, long float64) bool {
	return c.IsFree() && c.HasSatisfiedScanDelay() && c.CanMoveTo(lat, long)
}

// AllocatedWorkers returns every worker that has been used at least once.
func (p *Pool) AllocatedWorkers() []*worker.Worker {
	out := make([]*worker.Worker, 0, len(p.workers))
	for _, w := range p.workers {
		if w.HasBeenUsed() {
			out = append(out, w)
		}
	}
	return out
}

// BannedAllocated counts banned workers among the allocated ones.
func (p *Pool) BannedAllocated() int {
	n := 0
	for _, w := range p.workers {
		if w.HasBeenUsed() && w.IsBanned() {
			n++
		}
	}
	return n
}
