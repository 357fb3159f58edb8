package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{" info ", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"bogus", LevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, LevelWarn); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelDebug).With(String("comp", "queue"))
	log.Info("dispatched", Int("pending", 3), Err(errors.New("boom")), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["comp"] != "queue" {
		t.Fatalf("comp = %v, want queue", m["comp"])
	}
	if m["pending"] != float64(3) {
		t.Fatalf("pending = %v, want 3", m["pending"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err = %v, want boom", m["err"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelWarn)
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("Enabled(info) = true at warn level")
	}
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger IsZero = false")
	}
	zero.Error("no panic")
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	got := formatAlert([]byte(`{"level":"error","time":"x","message":"scan failed","worker":3,"caller":"a.go:1"}`))
	if got != "scan failed (worker=3)" {
		t.Fatalf("formatAlert = %q", got)
	}
	if got := formatAlert([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("formatAlert(raw) = %q", got)
	}
}

func TestServiceAlertHook(t *testing.T) {
	svc, log := New(Config{
		Level:  "info",
		Alerts: AlertConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	})
	t.Cleanup(func() { _ = svc.Close() })

	got := make(chan string, 4)
	svc.SetAlertFunc(func(level Level, msg string) {
		got <- msg
	})

	log.Info("below threshold")
	log.Warn("too many banned", Int("banned", 4))

	select {
	case msg := <-got:
		if msg != "too many banned (banned=4)" {
			t.Fatalf("alert = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}
	select {
	case msg := <-got:
		t.Fatalf("unexpected extra alert %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
