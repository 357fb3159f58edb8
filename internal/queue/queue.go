// Package queue paces scan dispatch: one loop pops pending requests, waits
// the global scan delay and hands each request to its worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/eventbus"
	"clairvoyance/internal/randx"
	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
	logx "clairvoyance/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Order is the pop order of pending requests.
type Order int

const (
	// LIFO dispatches the newest pending request first.
	LIFO Order = iota
	FIFO
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lifo":
		return LIFO, nil
	case "fifo":
		return FIFO, nil
	default:
		return LIFO, fmt.Errorf("unknown queue order %q", s)
	}
}

func (o Order) String() string {
	if o == FIFO {
		return "fifo"
	}
	return "lifo"
}

// Config holds nominal durations; they are scaled down before use.
type Config struct {
	// MaxLength bounds the pending list. <= 0 means unbounded.
	MaxLength       int
	GlobalDelay     time.Duration
	GlobalDelayFuzz time.Duration
	// BackoffStep is added to the global delay per unit of backoff.
	BackoffStep time.Duration
	// Parallel dispatches the next request without awaiting the previous scan.
	Parallel bool
	Order    Order
	// ScanTimeout bounds a single scan. 0 disables it.
	ScanTimeout time.Duration
}

type Deps struct {
	Clock     clock.Clock
	Transform clock.Transform
	Rand      *randx.Source
	Log       logx.Logger
	Bus       eventbus.Bus
}

// DropEvent is published when a request is rejected.
type DropEvent struct {
	RequestID    string `json:"request_id"`
	SpawnpointID string `json:"spawnpoint_id"`
	Reason       string `json:"reason"`
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending    int    `json:"pending"`
	Processing bool   `json:"processing"`
	InFlight   int64  `json:"in_flight"`
	Backoff    int    `json:"backoff"`
	Processed  uint64 `json:"processed"`
	Dropped    uint64 `json:"dropped"`
	Succeeded  uint64 `json:"succeeded"`
	Failed     uint64 `json:"failed"`
	TimedOut   uint64 `json:"timed_out"`
}

type Queue struct {
	cfg   Config
	clock clock.Clock
	tr    clock.Transform
	rand  *randx.Source
	log   logx.Logger
	bus   eventbus.Bus

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	pending    []*Request
	processing bool
	backoff    int
	stopped    bool

	inFlight   atomic.Int64
	processed  atomic.Uint64
	dropped    atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	timedOut   atomic.Uint64
	lastDropAt atomic.Int64
}

func New(cfg Config, deps Deps) *Queue {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Rand == nil {
		deps.Rand = randx.New(0)
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Queue{
		cfg:    cfg,
		clock:  deps.Clock,
		tr:     deps.Transform,
		rand:   deps.Rand,
		log:    deps.Log,
		bus:    deps.Bus,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddWorkerScanRequest schedules a scan of sp by w.
//
// When the pending list is full the request is returned already failed
// with ErrQueueFull on both signals, and is never enqueued.
func (q *Queue) AddWorkerScanRequest(w Scanner, sp *spawnpoint.Spawnpoint) *Request {
	req := newRequest(w, sp, q.clock.Now())

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.fail(req, ErrStopped)
		return req
	}
	if q.cfg.MaxLength > 0 && len(q.pending) >= q.cfg.MaxLength {
		pending := len(q.pending)
		q.mu.Unlock()
		q.onDropped(req, pending)
		return req
	}
	q.pending = append(q.pending, req)
	if !q.processing {
		q.processing = true
		q.wg.Add(1)
		go q.run()
	}
	q.mu.Unlock()
	return req
}

func (q *Queue) onDropped(req *Request, pending int) {
	n := q.dropped.Add(1)
	q.fail(req, ErrQueueFull)

	spID := ""
	if req.Spawnpoint != nil {
		spID = req.Spawnpoint.ID
	}
	q.bus.Publish(eventbus.Event{
		Type: eventbus.QueueDropped,
		Time: q.clock.Now(),
		Data: DropEvent{RequestID: req.ID.String(), SpawnpointID: spID, Reason: "queue_full"},
	})
	if q.shouldWarn(&q.lastDropAt, q.clock.Now()) {
		q.log.Warn("scan request dropped: queue full",
			logx.String("spawnpoint", spID),
			logx.Int("pending", pending),
			logx.Int("max", q.cfg.MaxLength),
			logx.Uint64("dropped", n),
		)
	}
}

func (q *Queue) fail(req *Request, err error) {
	now := q.clock.Now()
	req.setProcessed(now, err)
	req.setCompleted(now, nil, err)
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		req := q.pop()
		if req == nil {
			return
		}
		if err := clock.Sleep(q.ctx, q.clock, q.pacingDelay()); err != nil {
			q.fail(req, ErrStopped)
			q.drain()
			return
		}

		req.setProcessed(q.clock.Now(), nil)
		q.processed.Add(1)

		if q.cfg.Parallel {
			q.wg.Add(1)
			go func() {
				defer q.wg.Done()
				q.execute(req)
			}()
			continue
		}
		q.execute(req)
	}
}

// pop removes the next request, or marks the loop idle when none is left.
func (q *Queue) pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 || q.stopped {
		q.processing = false
		return nil
	}
	var req *Request
	if q.cfg.Order == FIFO {
		req = q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
	} else {
		last := len(q.pending) - 1
		req = q.pending[last]
		q.pending[last] = nil
		q.pending = q.pending[:last]
	}
	return req
}

func (q *Queue) pacingDelay() time.Duration {
	q.mu.Lock()
	backoff := q.backoff
	q.mu.Unlock()

	d := q.cfg.GlobalDelay + q.rand.Duration(q.cfg.GlobalDelayFuzz)
	if q.cfg.BackoffStep > 0 {
		d += time.Duration(backoff) * q.cfg.BackoffStep
	}
	return q.tr.ScaleDown(d)
}

type scanOutcome struct {
	res *remote.MapResponse
	err error
}

func (q *Queue) execute(req *Request) {
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	ctx, cancel := context.WithCancelCause(q.ctx)
	defer cancel(nil)
	timeout := q.tr.ScaleDown(q.cfg.ScanTimeout)
	if timeout > 0 {
		t := q.clock.AfterFunc(timeout, func() { cancel(ErrScanTimeout) })
		defer t.Stop()
	}

	// Scanners honour ctx, so even a timed out or stopped request completes
	// only once the scan has returned and the worker is idle again.
	res, err := q.scan(ctx, req)
	out := scanOutcome{res: res, err: err}

	cause := context.Cause(ctx)
	switch {
	case out.err == nil:
	case errors.Is(cause, ErrScanTimeout):
		q.timedOut.Add(1)
		out = scanOutcome{err: fmt.Errorf("%w after %v", ErrScanTimeout, timeout)}
	case q.ctx.Err() != nil:
		out = scanOutcome{err: fmt.Errorf("%w: %v", ErrStopped, out.err)}
	}

	req.setCompleted(q.clock.Now(), out.res, out.err)
	q.recordOutcome(req, out.err)
}

func (q *Queue) scan(ctx context.Context, req *Request) (res *remote.MapResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("scan panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()
	return req.Worker.Scan(ctx, req.Spawnpoint)
}

func (q *Queue) recordOutcome(req *Request, err error) {
	q.mu.Lock()
	if err == nil {
		if q.backoff > 0 {
			q.backoff--
		}
	} else {
		q.backoff++
	}
	backoff := q.backoff
	q.mu.Unlock()

	if err == nil {
		q.succeeded.Add(1)
		return
	}
	q.failed.Add(1)
	q.log.Warn("error while handling scan request",
		logx.String("request", req.ID.String()),
		logx.Int("backoff", backoff),
		logx.Err(err),
	)
}

func (q *Queue) drain() {
	q.mu.Lock()
	rest := q.pending
	q.pending = nil
	q.processing = false
	q.mu.Unlock()
	for _, r := range rest {
		q.fail(r, ErrStopped)
	}
}

func (q *Queue) shouldWarn(last *atomic.Int64, now time.Time) bool {
	prev := last.Load()
	n := now.UnixNano()
	if prev != 0 && (n-prev) < int64(warnThrottleEvery) {
		return false
	}
	return last.CompareAndSwap(prev, n)
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	st := Stats{Pending: len(q.pending), Processing: q.processing, Backoff: q.backoff}
	q.mu.Unlock()
	st.InFlight = q.inFlight.Load()
	st.Processed = q.processed.Load()
	st.Dropped = q.dropped.Load()
	st.Succeeded = q.succeeded.Load()
	st.Failed = q.failed.Load()
	st.TimedOut = q.timedOut.Load()
	return st
}

// Stop rejects new submissions, fails everything pending with ErrStopped,
// cancels in-flight scans and waits for them until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	q.cancel(ErrStopped)
	q.drain()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
