package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
)

// Scanner performs one scan. *worker.Worker implements it.
type Scanner interface {
	Scan(ctx context.Context, sp *spawnpoint.Spawnpoint) (*remote.MapResponse, error)
}

// Request is one scheduled scan. Its two signals fire at most once each:
// Processed when dispatch begins (or the request is dropped), Completed when
// the scan has a result or error.
type Request struct {
	ID          uuid.UUID
	Worker      Scanner
	Spawnpoint  *spawnpoint.Spawnpoint
	ScheduledAt time.Time

	processed     chan struct{}
	completed     chan struct{}
	processedOnce sync.Once
	completedOnce sync.Once

	mu           sync.Mutex
	processedAt  time.Time
	processedErr error
	completedAt  time.Time
	result       *remote.MapResponse
	err          error
}

func newRequest(w Scanner, sp *spawnpoint.Spawnpoint, now time.Time) *Request {
	return &Request{
		ID:          uuid.New(),
		Worker:      w,
		Spawnpoint:  sp,
		ScheduledAt: now,
		processed:   make(chan struct{}),
		completed:   make(chan struct{}),
	}
}

// Processed is closed once the request was dispatched or dropped.
func (r *Request) Processed() <-chan struct{} { return r.processed }

// Completed is closed once the request has a terminal result.
func (r *Request) Completed() <-chan struct{} { return r.completed }

func (r *Request) IsProcessed() bool {
	select {
	case <-r.processed:
		return true
	default:
		return false
	}
}

func (r *Request) IsCompleted() bool {
	select {
	case <-r.completed:
		return true
	default:
		return false
	}
}

// ProcessedAt returns the dispatch time and, for dropped requests, the reason.
func (r *Request) ProcessedAt() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processedAt, r.processedErr
}

func (r *Request) CompletedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// Result returns the terminal payload. It is only meaningful after Completed.
func (r *Request) Result() (*remote.MapResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Wait blocks until the request completes or ctx is done.
func (r *Request) Wait(ctx context.Context) (*remote.MapResponse, error) {
	select {
	case <-r.completed:
		return r.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Request) setProcessed(at time.Time, err error) {
	r.processedOnce.Do(func() {
		r.mu.Lock()
		r.processedAt = at
		r.processedErr = err
		r.mu.Unlock()
		close(r.processed)
	})
}

func (r *Request) setCompleted(at time.Time, res *remote.MapResponse, err error) {
	r.completedOnce.Do(func() {
		r.mu.Lock()
		r.completedAt = at
		r.result = res
		r.err = err
		r.mu.Unlock()
		close(r.completed)
	})
}
