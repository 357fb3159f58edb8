package timer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"clairvoyance/internal/clock"
	logx "clairvoyance/pkg/logx"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestStartInvalidInterval(t *testing.T) {
	t.Parallel()
	tm := New(clock.NewManual(t0), logx.Nop(), func() {})
	if err := tm.Start(0, false); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("Start(0) err = %v, want ErrInvalidInterval", err)
	}
}

func TestExpectedInstantsAdvanceByInterval(t *testing.T) {
	t.Parallel()
	m := clock.NewManual(t0)
	var fired []time.Time
	var tm *Timer
	tm = New(m, logx.Nop(), func() {
		fired = append(fired, m.Now())
		// Simulate a slow callback: 300ms of work every tick.
		m.Advance(300 * time.Millisecond)
	})
	if err := tm.Start(time.Second, false); err != nil {
		t.Fatal(err)
	}

	m.Advance(10 * time.Second)
	if len(fired) != 10 {
		t.Fatalf("fires = %d, want 10", len(fired))
	}
	for i, at := range fired {
		want := t0.Add(time.Duration(i+1) * time.Second)
		if !at.Equal(want) {
			t.Fatalf("fire %d at %v, want %v", i, at, want)
		}
	}
	if tm.Skipped() != 0 {
		t.Fatalf("Skipped = %d, want 0", tm.Skipped())
	}
}

func TestFireImmediately(t *testing.T) {
	t.Parallel()
	m := clock.NewManual(t0)
	var n atomic.Int32
	tm := New(m, logx.Nop(), func() { n.Add(1) })
	if err := tm.Start(time.Minute, true); err != nil {
		t.Fatal(err)
	}
	m.Advance(0)
	if n.Load() != 1 {
		t.Fatalf("fires after start = %d, want 1", n.Load())
	}
	if got := tm.Next(); !got.Equal(t0.Add(time.Minute)) {
		t.Fatalf("Next = %v, want %v", got, t0.Add(time.Minute))
	}
}

func TestPanickingCallbackKeepsCadence(t *testing.T) {
	t.Parallel()
	m := clock.NewManual(t0)
	var n atomic.Int32
	tm := New(m, logx.Nop(), func() {
		n.Add(1)
		panic("boom")
	})
	if err := tm.Start(time.Second, false); err != nil {
		t.Fatal(err)
	}
	m.Advance(100 * time.Second)
	if n.Load() != 100 {
		t.Fatalf("fires = %d, want 100", n.Load())
	}
	if !tm.Running() {
		t.Fatal("timer stopped after panics")
	}
}

func TestSkipsMissedIntervals(t *testing.T) {
	t.Parallel()
	m := clock.NewManual(t0)
	var fired []time.Time
	first := true
	tm := New(m, logx.Nop(), func() {
		fired = append(fired, m.Now())
		if first {
			first = false
			// Stall long enough to miss the ticks at +1s and +2s.
			m.Advance(2500 * time.Millisecond)
		}
	})
	if err := tm.Start(time.Second, true); err != nil {
		t.Fatal(err)
	}
	m.Advance(0)
	if tm.Skipped() != 2 {
		t.Fatalf("Skipped = %d, want 2", tm.Skipped())
	}
	if got := tm.Next(); !got.Equal(t0.Add(3 * time.Second)) {
		t.Fatalf("Next = %v, want %v", got, t0.Add(3*time.Second))
	}

	m.Set(t0.Add(4 * time.Second))
	want := []time.Time{t0, t0.Add(3 * time.Second), t0.Add(4 * time.Second)}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if !fired[i].Equal(want[i]) {
			t.Fatalf("fire %d at %v, want %v", i, fired[i], want[i])
		}
	}
}

func TestClearIdempotent(t *testing.T) {
	t.Parallel()
	m := clock.NewManual(t0)
	var n atomic.Int32
	tm := New(m, logx.Nop(), func() { n.Add(1) })
	tm.Clear()
	if err := tm.Start(time.Second, false); err != nil {
		t.Fatal(err)
	}
	tm.Clear()
	tm.Clear()
	m.Advance(5 * time.Second)
	if n.Load() != 0 {
		t.Fatalf("fires after Clear = %d, want 0", n.Load())
	}
	if tm.Running() {
		t.Fatal("Running after Clear")
	}
	if m.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", m.Pending())
	}
}

func TestClearFromCallback(t *testing.T) {
	t.Parallel()
	m := clock.NewManual(t0)
	var n atomic.Int32
	var tm *Timer
	tm = New(m, logx.Nop(), func() {
		n.Add(1)
		tm.Clear()
	})
	if err := tm.Start(time.Second, false); err != nil {
		t.Fatal(err)
	}
	m.Advance(5 * time.Second)
	if n.Load() != 1 {
		t.Fatalf("fires = %d, want 1", n.Load())
	}
}
