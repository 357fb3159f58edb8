package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Message is one outbound notification.
type Message struct {
	ChatID         int64
	ThreadID       int
	Text           string
	DisablePreview bool
	// Priority >= 7 is prefixed with a warning marker.
	Priority int
}

// Sender delivers a message to a chat transport.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) error

func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
}
