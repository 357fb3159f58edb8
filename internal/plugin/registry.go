// Package plugin holds the static set of spawn listeners built at startup
// and dispatches scan results to them.
//
// Listener failures never reach the scheduler: every call is guarded by a
// panic recovery at the dispatch boundary.
package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
	logx "clairvoyance/pkg/logx"
)

// SpawnListener receives newly observed sightings and operator errors.
type SpawnListener interface {
	Name() string
	OnSpawn(ctx context.Context, s storage.Sighting, sp *spawnpoint.Spawnpoint)
	OnError(ctx context.Context, msg string)
}

// Lifecycle is implemented by listeners that own resources.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

const slowListener = 2 * time.Second

// Registry is safe for concurrent dispatch.
type Registry struct {
	log logx.Logger

	mu        sync.RWMutex
	listeners []SpawnListener
	names     map[string]bool
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log.With(logx.String("comp", "plugins")), names: map[string]bool{}}
}

// Register adds l. Names must be unique.
func (r *Registry) Register(l SpawnListener) error {
	if l == nil {
		return fmt.Errorf("nil listener")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[l.Name()] {
		return fmt.Errorf("plugin %q already registered", l.Name())
	}
	r.names[l.Name()] = true
	r.listeners = append(r.listeners, l)
	r.log.Info("loaded plugin", logx.String("plugin", l.Name()))
	return nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l.Name())
	}
	return out
}

func (r *Registry) snapshot() []SpawnListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SpawnListener(nil), r.listeners...)
}

// Start starts listeners implementing Lifecycle. A failing listener is
// logged and skipped.
func (r *Registry) Start(ctx context.Context) {
	for _, l := range r.snapshot() {
		lc, ok := l.(Lifecycle)
		if !ok {
			continue
		}
		if err := r.guard(l.Name(), "start", func() error { return lc.Start(ctx) }); err != nil {
			r.log.Warn("plugin start failed", logx.String("plugin", l.Name()), logx.Err(err))
		}
	}
}

// Stop stops listeners in reverse registration order.
func (r *Registry) Stop(ctx context.Context) {
	ls := r.snapshot()
	for i := len(ls) - 1; i >= 0; i-- {
		lc, ok := ls[i].(Lifecycle)
		if !ok {
			continue
		}
		if err := r.guard(ls[i].Name(), "stop", func() error { return lc.Stop(ctx) }); err != nil {
			r.log.Warn("plugin stop failed", logx.String("plugin", ls[i].Name()), logx.Err(err))
		}
	}
}

// Dispatch delivers a new sighting to every listener.
func (r *Registry) Dispatch(ctx context.Context, s storage.Sighting, sp *spawnpoint.Spawnpoint) {
	for _, l := range r.snapshot() {
		l := l
		_ = r.guard(l.Name(), "spawn", func() error {
			l.OnSpawn(ctx, s, sp)
			return nil
		})
	}
}

// DispatchError delivers an operator error message to every listener.
func (r *Registry) DispatchError(ctx context.Context, msg string) {
	for _, l := range r.snapshot() {
		l := l
		_ = r.guard(l.Name(), "error", func() error {
			l.OnError(ctx, msg)
			return nil
		})
	}
}

func (r *Registry) guard(name, stage string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("plugin panicked",
				logx.String("plugin", name),
				logx.String("stage", stage),
				logx.Any("panic", p),
				logx.Stack(string(debug.Stack())),
			)
			err = fmt.Errorf("plugin %s panicked: %v", name, p)
		}
		if took := time.Since(start); took > slowListener {
			r.log.Warn("slow plugin", logx.String("plugin", name), logx.String("stage", stage), logx.Duration("took", took))
		}
	}()
	return fn()
}
