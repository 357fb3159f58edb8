// Package maintenance runs scheduled storage upkeep.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/storage"
	logx "clairvoyance/pkg/logx"
)

const (
	DefaultSchedule  = "@every 10m"
	DefaultRetention = time.Hour
	pruneTimeout     = 30 * time.Second
)

type Config struct {
	// Schedule is a cron spec; seconds are optional. Descriptors such as
	// "@every 10m" and "@hourly" work too.
	Schedule string
	// Retention keeps sightings this long after they disappear.
	Retention time.Duration
}

// Service prunes expired sightings on a cron schedule.
type Service struct {
	cfg    Config
	store  storage.Store
	clock  clock.Clock
	log    logx.Logger
	parser cron.Parser

	mu sync.Mutex
	c  *cron.Cron

	runs   atomic.Uint64
	pruned atomic.Int64
}

func New(cfg Config, store storage.Store, clk clock.Clock, log logx.Logger) *Service {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		clock:  clk,
		log:    log.With(logx.String("comp", "maintenance")),
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers the prune job. It is a no-op without a store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil || s.c != nil {
		return nil
	}
	sched, err := s.parser.Parse(s.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("maintenance: prune schedule %q: %w", s.cfg.Schedule, err)
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sched, cron.FuncJob(func() {
		_, _ = s.RunOnce(ctx)
	}))
	c.Start()
	s.c = c
	s.log.Info("prune scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("retention", s.cfg.Retention),
	)
	return nil
}

// RunOnce prunes sightings that disappeared more than the retention ago.
func (s *Service) RunOnce(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, storage.ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	before := s.clock.Now().Add(-s.cfg.Retention)
	n, err := s.store.PruneSightings(ctx, before)
	s.runs.Add(1)
	if err != nil {
		s.log.Warn("prune failed", logx.Err(err))
		return 0, err
	}
	s.pruned.Add(n)
	if n > 0 {
		s.log.Info("pruned expired sightings", logx.Int64("count", n), logx.Time("before", before))
	} else {
		s.log.Debug("nothing to prune")
	}
	return n, nil
}

// Runs and Pruned are lifetime totals.
func (s *Service) Runs() uint64  { return s.runs.Load() }
func (s *Service) Pruned() int64 { return s.pruned.Load() }

// Stop halts the schedule and waits for a running job until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
