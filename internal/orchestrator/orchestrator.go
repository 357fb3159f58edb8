// Package orchestrator wires spawnpoint activations to worker allocation and
// the request queue, forwards scan results to storage and plugins, and owns
// the run statistics and safety checks.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/eventbus"
	"clairvoyance/internal/plugin"
	"clairvoyance/internal/pool"
	"clairvoyance/internal/queue"
	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
	"clairvoyance/internal/timer"
	"clairvoyance/internal/worker"
	logx "clairvoyance/pkg/logx"
)

const persistTimeout = 5 * time.Second

// Config holds nominal durations; they are scaled down before scheduling.
type Config struct {
	SpawnScanDelay      time.Duration
	HealthCheckInterval time.Duration
	// BannedLimit is the number of banned workers the run tolerates.
	BannedLimit int
	// StatsInterval below one second disables periodic stats.
	StatsInterval time.Duration
	// SimulationDuration ends a simulated run once exceeded. 0 runs forever.
	SimulationDuration time.Duration
}

type Deps struct {
	Clock       clock.Clock
	Transform   clock.Transform
	Log         logx.Logger
	Bus         eventbus.Bus
	Pool        *pool.Pool
	Queue       *queue.Queue
	Spawnpoints []*spawnpoint.Spawnpoint
	Pause       *Switch
	// Store and Plugins are optional.
	Store   storage.Store
	Plugins *plugin.Registry
	// OnFatal receives ErrTooManyBanned or ErrSimulationComplete.
	OnFatal func(error)
}

// ActivationEvent is the payload of spawn and scan events.
type ActivationEvent struct {
	SpawnpointID string `json:"spawnpoint_id"`
	WorkerID     int    `json:"worker_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

type Orchestrator struct {
	cfg         Config
	clock       clock.Clock
	tr          clock.Transform
	log         logx.Logger
	bus         eventbus.Bus
	pool        *pool.Pool
	queue       *queue.Queue
	spawnpoints []*spawnpoint.Spawnpoint
	pause       *Switch
	store       storage.Store
	plugins     *plugin.Registry
	onFatal     func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  time.Time
	running  bool
	delays   map[clock.Timer]struct{}
	health   *timer.Timer
	stats    *timer.Timer
	fatalOne sync.Once

	bannedMu  sync.Mutex
	bannedIDs map[int]bool

	spawnsSeen      atomic.Uint64
	spawnsProcessed atomic.Uint64
	spawnsScanned   atomic.Uint64
	sightingsNew    atomic.Uint64
	persistFailures atomic.Uint64
}

func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	if deps.Pause == nil {
		deps.Pause = NewSwitch(false)
	}
	if deps.Plugins == nil {
		deps.Plugins = plugin.NewRegistry(deps.Log)
	}
	if deps.OnFatal == nil {
		deps.OnFatal = func(error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:         cfg,
		clock:       deps.Clock,
		tr:          deps.Transform,
		log:         deps.Log.With(logx.String("comp", "orchestrator")),
		bus:         deps.Bus,
		pool:        deps.Pool,
		queue:       deps.Queue,
		spawnpoints: deps.Spawnpoints,
		pause:       deps.Pause,
		store:       deps.Store,
		plugins:     deps.Plugins,
		onFatal:     deps.OnFatal,
		ctx:         ctx,
		cancel:      cancel,
		delays:      map[clock.Timer]struct{}{},
		bannedIDs:   map[int]bool{},
	}
}

// Pause exposes the pause switch to control surfaces.
func (o *Orchestrator) Pause() *Switch { return o.pause }

// Start arms every spawnpoint and the periodic health and stats timers.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.started = o.clock.Now()

	o.health = timer.New(o.clock, o.log, o.HealthCheck)
	if iv := o.tr.ScaleDown(o.cfg.HealthCheckInterval); iv > 0 {
		if err := o.health.Start(iv, false); err != nil {
			o.mu.Unlock()
			return fmt.Errorf("health check timer: %w", err)
		}
	}
	if o.cfg.StatsInterval >= time.Second {
		o.stats = timer.New(o.clock, o.log, o.reportStats)
		if err := o.stats.Start(o.tr.ScaleDown(o.cfg.StatsInterval), false); err != nil {
			o.mu.Unlock()
			return fmt.Errorf("stats timer: %w", err)
		}
	}
	o.mu.Unlock()

	// Bans also happen on relogin timers, away from any scan completion.
	for _, w := range o.pool.Workers() {
		w.SetBanListener(o.noteBanned)
	}
	for _, sp := range o.spawnpoints {
		sp.SetSpawnListener(o.HandleSpawn)
		sp.StartSpawnTimer()
	}
	o.log.Info("scheduler started",
		logx.Int("spawnpoints", len(o.spawnpoints)),
		logx.Int("workers", o.pool.Len()),
		logx.Bool("paused", o.pause.Paused()),
	)
	return nil
}

// Stop disarms spawnpoints, cancels pending allocations, stops the queue and
// waits for in-flight completions until ctx is done.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	for t := range o.delays {
		t.Stop()
	}
	o.delays = map[clock.Timer]struct{}{}
	if o.health != nil {
		o.health.Clear()
	}
	if o.stats != nil {
		o.stats.Clear()
	}
	o.mu.Unlock()

	for _, sp := range o.spawnpoints {
		sp.StopSpawnTimer()
	}
	o.cancel()
	qerr := o.queue.Stop(ctx)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, w := range o.pool.Workers() {
		w.Close()
	}
	return qerr
}

// HandleSpawn is the activation listener of every spawnpoint.
func (o *Orchestrator) HandleSpawn(sp *spawnpoint.Spawnpoint) {
	if o.pause.Paused() {
		return
	}
	o.spawnsSeen.Add(1)
	o.bus.Publish(eventbus.Event{Type: eventbus.SpawnActivated, Time: o.clock.Now(), Data: ActivationEvent{SpawnpointID: sp.ID}})

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	var t clock.Timer
	t = o.clock.AfterFunc(o.tr.ScaleDown(o.cfg.SpawnScanDelay), func() {
		o.mu.Lock()
		delete(o.delays, t)
		running := o.running
		o.mu.Unlock()
		if running {
			o.allocate(sp)
		}
	})
	o.delays[t] = struct{}{}
}

func (o *Orchestrator) allocate(sp *spawnpoint.Spawnpoint) {
	w := o.pool.Acquire(sp.Lat, sp.Long)
	if w == nil {
		o.spawnsProcessed.Add(1)
		o.log.Debug("no worker available, skipping spawn", logx.String("spawnpoint", sp.ID))
		o.bus.Publish(eventbus.Event{Type: eventbus.SpawnDropped, Time: o.clock.Now(), Data: ActivationEvent{SpawnpointID: sp.ID}})
		return
	}
	o.log.Debug("spawn activated, sending worker", logx.String("spawnpoint", sp.ID), logx.Int("worker", w.ID))

	req := o.queue.AddWorkerScanRequest(w, sp)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		// Queue.Stop fails whatever is left, so this never blocks forever.
		<-req.Completed()
		res, err := req.Result()
		o.complete(w, sp, res, err)
	}()
}

func (o *Orchestrator) complete(w *worker.Worker, sp *spawnpoint.Spawnpoint, res *remote.MapResponse, err error) {
	w.Free()
	o.spawnsProcessed.Add(1)

	if err != nil {
		o.log.Warn("failed to process scan",
			logx.Int("worker", w.ID),
			logx.String("spawnpoint", sp.ID),
			logx.Err(err),
		)
		o.bus.Publish(eventbus.Event{Type: eventbus.ScanFailed, Time: o.clock.Now(), Data: ActivationEvent{SpawnpointID: sp.ID, WorkerID: w.ID, Error: err.Error()}})
		return
	}

	o.spawnsScanned.Add(1)
	o.bus.Publish(eventbus.Event{Type: eventbus.ScanCompleted, Time: o.clock.Now(), Data: ActivationEvent{SpawnpointID: sp.ID, WorkerID: w.ID}})
	o.persist(sp, res)
}

// persist stores results and notifies plugins of new sightings. Failures
// here never affect scheduling.
func (o *Orchestrator) persist(sp *spawnpoint.Spawnpoint, res *remote.MapResponse) {
	now := o.clock.Now()
	sightings := ParseSightings(res, sp, now)
	gyms := ParseGyms(res)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	for _, s := range sightings {
		inserted := true
		if o.store != nil {
			var err error
			inserted, err = o.store.UpsertSighting(ctx, s)
			if err != nil {
				o.persistFailures.Add(1)
				o.log.Warn("failed to store sighting", logx.String("encounter", s.EncounterID), logx.Err(err))
				continue
			}
		}
		if inserted {
			o.sightingsNew.Add(1)
			o.plugins.Dispatch(ctx, s, sp)
		}
	}
	if o.store == nil {
		return
	}
	for _, g := range gyms {
		if err := o.store.UpsertGym(ctx, g); err != nil {
			o.persistFailures.Add(1)
			o.log.Warn("failed to store gym", logx.String("gym", g.ID), logx.Err(err))
		}
	}
}

// noteBanned announces a ban once per worker.
func (o *Orchestrator) noteBanned(w *worker.Worker) {
	if !w.IsBanned() {
		return
	}
	o.bannedMu.Lock()
	seen := o.bannedIDs[w.ID]
	o.bannedIDs[w.ID] = true
	o.bannedMu.Unlock()
	if seen {
		return
	}
	o.bus.Publish(eventbus.Event{Type: eventbus.WorkerBanned, Time: o.clock.Now(), Data: ActivationEvent{WorkerID: w.ID}})
	o.plugins.DispatchError(o.ctx, fmt.Sprintf("worker %d (%s) banned", w.ID, w.Username()))
}

// HealthCheck ends the run when banned workers exceed the configured limit.
func (o *Orchestrator) HealthCheck() {
	banned := o.pool.BannedAllocated()
	if banned <= o.cfg.BannedLimit {
		return
	}
	err := fmt.Errorf("%w: %d banned (limit %d)", ErrTooManyBanned, banned, o.cfg.BannedLimit)
	o.log.Error("too many banned accounts detected, exiting", logx.Int("banned", banned), logx.Int("limit", o.cfg.BannedLimit))
	o.fatal(err)
}

func (o *Orchestrator) reportStats() {
	st := o.Stats()
	o.logStats(st)
	if o.tr.Simulate && o.cfg.SimulationDuration > 0 && st.Running > o.cfg.SimulationDuration {
		o.log.Info("simulation complete, exiting", logx.Float64("minutes_running", st.MinutesRunning))
		o.fatal(ErrSimulationComplete)
	}
}

func (o *Orchestrator) fatal(err error) {
	o.fatalOne.Do(func() { o.onFatal(err) })
}

func (o *Orchestrator) startedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started.IsZero() {
		return o.clock.Now()
	}
	return o.started
}
