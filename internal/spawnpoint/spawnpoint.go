// Package spawnpoint models a location that becomes active once per hour at a
// fixed offset and drives the hourly activation timer for it.
package spawnpoint

import (
	"runtime/debug"
	"sync"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/geo"
	"clairvoyance/internal/timer"
	logx "clairvoyance/pkg/logx"
)

// Listener is invoked on every activation.
type Listener func(sp *Spawnpoint)

type State int

const (
	StateIdle State = iota
	StateArmed
)

func (s State) String() string {
	if s == StateArmed {
		return "armed"
	}
	return "idle"
}

// Env carries the scheduling collaborators shared by all spawnpoints.
type Env struct {
	Clock     clock.Clock
	Transform clock.Transform
	// Lookback is how long after a missed activation a freshly armed
	// spawnpoint still fires once out-of-band.
	Lookback time.Duration
	Log      logx.Logger
}

// Spawnpoint is immutable apart from its timer state.
type Spawnpoint struct {
	ID        string
	Lat       float64
	Long      float64
	Elevation float64
	Cell      string
	// Offset is the activation time relative to the start of each hour.
	Offset time.Duration

	env Env
	log logx.Logger

	mu       sync.Mutex
	listener Listener
	gen      uint64
	startT   clock.Timer
	hourly   *timer.Timer
}

func New(id string, lat, long, elev float64, offset time.Duration, env Env) *Spawnpoint {
	if env.Clock == nil {
		env.Clock = clock.Real{}
	}
	return &Spawnpoint{
		ID:        id,
		Lat:       lat,
		Long:      long,
		Elevation: elev,
		Offset:    offset,
		env:       env,
		log:       env.Log.With(logx.String("spawnpoint", id)),
	}
}

func (sp *Spawnpoint) Point() geo.Point { return geo.Point{Lat: sp.Lat, Long: sp.Long} }

func (sp *Spawnpoint) SetSpawnListener(fn Listener) {
	sp.mu.Lock()
	sp.listener = fn
	sp.mu.Unlock()
}

func (sp *Spawnpoint) State() State {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.startT != nil || (sp.hourly != nil && sp.hourly.Running()) {
		return StateArmed
	}
	return StateIdle
}

// NextActivation returns the next activation at or after now.
func (sp *Spawnpoint) NextActivation(now time.Time) time.Time {
	at := now.Truncate(time.Hour).Add(sp.Offset)
	if at.Before(now) {
		at = at.Add(time.Hour)
	}
	return at
}

// StartSpawnTimer arms the hourly activation timer, replacing any running one.
//
// When this hour's activation already passed but lies within the lookback
// window, the listener fires once out-of-band. The repeating timer always
// starts at the next activation instant.
func (sp *Spawnpoint) StartSpawnTimer() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.stopLocked()

	now := sp.env.Clock.Now()
	activation := now.Truncate(time.Hour).Add(sp.Offset)
	firstFireDelay := activation.Sub(now)

	gen := sp.gen
	if firstFireDelay <= 0 {
		if firstFireDelay < 0 && -firstFireDelay <= sp.env.Lookback {
			ago := -firstFireDelay
			sp.env.Clock.AfterFunc(0, func() {
				sp.mu.Lock()
				stale := gen != sp.gen
				sp.mu.Unlock()
				if stale {
					return
				}
				sp.log.Debug("activation within lookback, firing immediately", logx.Duration("ago", ago))
				sp.FireSpawn()
			})
		}
		firstFireDelay += time.Hour
	}

	sp.log.Debug("spawn timer armed", logx.Duration("first_fire_in", firstFireDelay))

	sp.startT = sp.env.Clock.AfterFunc(sp.env.Transform.ScaleDown(firstFireDelay), func() {
		sp.beginHourly(gen)
	})
}

func (sp *Spawnpoint) beginHourly(gen uint64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if gen != sp.gen {
		return
	}
	sp.startT = nil
	sp.hourly = timer.New(sp.env.Clock, sp.log, sp.FireSpawn)
	if err := sp.hourly.Start(sp.env.Transform.ScaleDown(time.Hour), true); err != nil {
		sp.log.Error("failed to start hourly timer", logx.Err(err))
	}
}

// StopSpawnTimer cancels the pending first fire and the hourly timer.
// It is safe to call when nothing is running.
func (sp *Spawnpoint) StopSpawnTimer() {
	sp.mu.Lock()
	sp.stopLocked()
	sp.mu.Unlock()
}

func (sp *Spawnpoint) stopLocked() {
	sp.gen++
	if sp.startT != nil {
		sp.startT.Stop()
		sp.startT = nil
	}
	if sp.hourly != nil {
		sp.hourly.Clear()
		sp.hourly = nil
	}
}

// FireSpawn invokes the listener. Listener panics are logged, never propagated.
func (sp *Spawnpoint) FireSpawn() {
	sp.mu.Lock()
	fn := sp.listener
	sp.mu.Unlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sp.log.Error("spawn listener panicked",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	fn(sp)
}
