package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "clairvoyance/pkg/logx"
)

type recordingSender struct {
	mu    sync.Mutex
	fails int
	got   []Message
}

func (r *recordingSender) Send(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("transient")
	}
	r.got = append(r.got, m)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, &recordingSender{}, logx.Nop())
	if err := s.Notify(context.Background(), Message{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestNotifyBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, &recordingSender{}, logx.Nop())
	if err := s.Notify(context.Background(), Message{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestNotifyDeliversWithRetryAndPrefix(t *testing.T) {
	t.Parallel()
	snd := &recordingSender{fails: 1}
	s := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}, snd, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Message{ChatID: 7, Text: "boom", Priority: 9}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return snd.count() == 1 })

	snd.mu.Lock()
	got := snd.got[0]
	snd.mu.Unlock()
	if got.Text != "🚨 boom" || got.ChatID != 7 {
		t.Fatalf("sent = %+v", got)
	}
	if h := s.History(); len(h) != 1 {
		t.Fatalf("history len = %d", len(h))
	}
}

func TestNotifyDedupWindow(t *testing.T) {
	t.Parallel()
	snd := &recordingSender{}
	s := New(Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Hour}, snd, logx.Nop())
	s.Start(context.Background())

	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), Message{ChatID: 1, Text: "same"}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	_ = s.Notify(context.Background(), Message{ChatID: 2, Text: "same"})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)

	if got := snd.count(); got != 2 {
		t.Fatalf("sent %d messages, want 2", got)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %v out of range", attempt, d)
		}
	}
}
