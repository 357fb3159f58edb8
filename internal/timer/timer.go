// Package timer implements a repeating timer that measures every tick from
// the previously expected instant rather than from "now", so callback run
// time and scheduler latency never accumulate. Ticks that are missed
// entirely are skipped, never replayed.
package timer

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"clairvoyance/internal/clock"
	logx "clairvoyance/pkg/logx"
)

var ErrInvalidInterval = errors.New("timer: interval must be > 0")

// Timer fires fn at a fixed interval. The zero value is not usable; use New.
type Timer struct {
	clock clock.Clock
	log   logx.Logger
	fn    func()

	mu       sync.Mutex
	gen      uint64
	running  bool
	interval time.Duration
	expected time.Time
	pending  clock.Timer

	skipped atomic.Uint64
}

func New(c clock.Clock, log logx.Logger, fn func()) *Timer {
	if c == nil {
		c = clock.Real{}
	}
	return &Timer{clock: c, log: log, fn: fn}
}

// Start (re)starts the timer. With fireImmediately the first tick happens
// now, otherwise one interval from now.
func (t *Timer) Start(interval time.Duration, fireImmediately bool) error {
	if interval <= 0 {
		return fmt.Errorf("%w (got %v)", ErrInvalidInterval, interval)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	now := t.clock.Now()
	t.running = true
	t.interval = interval
	t.expected = now
	if !fireImmediately {
		t.expected = now.Add(interval)
	}
	t.scheduleLocked(t.expected.Sub(now))
	return nil
}

// Clear cancels any pending tick. It is idempotent.
func (t *Timer) Clear() {
	t.mu.Lock()
	t.stopLocked()
	t.mu.Unlock()
}

// Running reports whether a tick is scheduled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Next returns the instant the next tick is expected at. Zero when stopped.
func (t *Timer) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return time.Time{}
	}
	return t.expected
}

// Skipped returns how many ticks were dropped because they were already past.
func (t *Timer) Skipped() uint64 { return t.skipped.Load() }

func (t *Timer) stopLocked() {
	t.gen++
	t.running = false
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer) scheduleLocked(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	gen := t.gen
	t.pending = t.clock.AfterFunc(delay, func() { t.tick(gen) })
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.mu.Unlock()

	t.invoke()

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || !t.running {
		// Cleared or restarted by the callback.
		return
	}

	next := t.expected.Add(t.interval)
	delay := next.Sub(t.clock.Now())
	if delay < 0 {
		late := -delay
		k := int64((late + t.interval - 1) / t.interval)
		next = next.Add(time.Duration(k) * t.interval)
		delay = next.Sub(t.clock.Now())
		t.skipped.Add(uint64(k))
		t.log.Warn("timer overrun, skipping intervals",
			logx.Int64("skipped", k),
			logx.Duration("late", late),
			logx.Duration("interval", t.interval),
		)
	}
	t.expected = next
	t.scheduleLocked(delay)
}

func (t *Timer) invoke() {
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("timer callback panicked",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	if t.fn != nil {
		t.fn()
	}
}
