package queue

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrQueueFull   = errors.New("queue: queue full")
	ErrStopped     = errors.New("queue: stopped")
	// ErrScanTimeout matches context.DeadlineExceeded, so scanners account
	// a timed out scan like any other deadline.
	ErrScanTimeout = fmt.Errorf("queue: scan timed out: %w", context.DeadlineExceeded)
)
