// Package worker models one scan-capable account: its login session,
// reservation, position and health.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/geo"
	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
	logx "clairvoyance/pkg/logx"
)

// LoginState is the session state of a worker.
type LoginState int

const (
	LoggedOut LoginState = iota
	LoggingIn
	LoggedIn
)

func (s LoginState) String() string {
	switch s {
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	default:
		return "logged_out"
	}
}

var nextID atomic.Int64

// Worker is safe for concurrent use. Its fields are only changed by its own
// methods.
type Worker struct {
	ID    int
	creds remote.Credentials

	cfg  Config
	deps Deps
	log  logx.Logger

	mu            sync.Mutex
	state         LoginState
	session       remote.Session
	lastLogin     time.Time
	loggedInFuzz  time.Duration
	waiting       bool
	banned        bool
	loginFailures int
	scanFailures  int
	relogin       clock.Timer
	onBanned      func(*Worker)

	free         bool
	lastReserved time.Time
	lastFreed    time.Time
	extraDelay   time.Duration

	moved      bool
	pos        remote.Position
	lastMoved  time.Time
	metersMove float64
	movements  int
	scans      int
}

// New creates a worker with the next sequential id.
func New(creds remote.Credentials, cfg Config, deps Deps) *Worker {
	deps.defaults()
	id := int(nextID.Add(1))
	w := &Worker{
		ID:    id,
		creds: creds,
		cfg:   cfg,
		deps:  deps,
		free:  true,
		log:   deps.Log.With(logx.Int("worker", id)),
	}
	w.extraDelay = deps.Rand.Duration(deps.Transform.ScaleDown(cfg.DelayFuzz))
	return w
}

func (w *Worker) Username() string { return w.creds.Username }

// EnsureLoggedIn returns nil once the worker holds a fresh session.
//
// A session older than the maximum logged-in time (minus this worker's fuzz)
// is dropped first. A logged out worker waits a random login fuzz and logs
// in; one already waiting on a relogin fails fast instead of stacking
// another attempt.
func (w *Worker) EnsureLoggedIn(ctx context.Context) error {
	w.mu.Lock()
	if w.banned {
		w.mu.Unlock()
		return ErrBanned
	}
	if !w.lastLogin.IsZero() && w.state == LoggedIn {
		age := w.deps.Transform.ScaleUp(w.deps.Clock.Now().Sub(w.lastLogin))
		if age > w.cfg.MaxLoggedIn-w.loggedInFuzz {
			w.log.Debug("session expired, logging in again", logx.Duration("age", age))
			w.state = LoggedOut
		}
	}
	if w.state == LoggedIn {
		w.mu.Unlock()
		return nil
	}
	if w.waiting {
		w.mu.Unlock()
		return fmt.Errorf("worker %d: %w", w.ID, ErrWaitingRelogin)
	}
	wait := w.deps.Rand.Duration(w.deps.Transform.ScaleDown(w.cfg.LoginFuzz))
	w.mu.Unlock()

	if err := clock.Sleep(ctx, w.deps.Clock, wait); err != nil {
		return err
	}
	return w.RefreshLogin(ctx)
}

// RefreshLogin performs a fresh login.
//
// Failures count toward the login failure limit; reaching it bans the worker
// for good. Otherwise another attempt is scheduled after the relogin delay
// and the worker is unavailable until then.
func (w *Worker) RefreshLogin(ctx context.Context) error {
	w.mu.Lock()
	if w.banned {
		w.mu.Unlock()
		return ErrBanned
	}
	w.state = LoggingIn
	w.mu.Unlock()

	sess, err := w.deps.Client.Login(ctx, w.creds)
	banned, err := w.loginDone(ctx, sess, err)
	if banned {
		w.notifyBanned()
	}
	return err
}

func (w *Worker) loginDone(ctx context.Context, sess remote.Session, err error) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		w.loginFailures = 0
		w.state = LoggedIn
		w.session = sess
		w.waiting = false
		w.lastLogin = w.deps.Clock.Now()
		w.loggedInFuzz = w.deps.Rand.Duration(w.cfg.MaxLoggedInFuzz)
		w.log.Debug("logged in")
		return false, nil
	}

	w.state = LoggedOut
	w.session = remote.Session{}
	if w.banned || aborted(ctx) {
		return false, fmt.Errorf("worker %d: login: %w", w.ID, err)
	}
	w.loginFailures++
	if w.loginFailures >= w.cfg.LoginFailureLimit {
		w.banned = true
		w.log.Error("worker seems to be banned (can't log in), removing from pool",
			logx.String("username", w.creds.Username),
			logx.Int("failures", w.loginFailures),
			logx.Err(err),
		)
		return true, fmt.Errorf("worker %d: login: %w", w.ID, err)
	}
	w.log.Debug("login failed, will retry", logx.Int("failures", w.loginFailures), logx.Err(err))
	w.scheduleReloginLocked()
	return false, fmt.Errorf("worker %d: login: %w", w.ID, err)
}

// aborted is true when ctx was cancelled by its owner rather than timing
// out. Such failures say nothing about the account.
func aborted(ctx context.Context) bool {
	return ctx.Err() != nil && !errors.Is(context.Cause(ctx), context.DeadlineExceeded)
}

// SetBanListener registers fn to run once when the worker gets banned, from
// whichever goroutine noticed it. fn runs without the worker lock held.
func (w *Worker) SetBanListener(fn func(*Worker)) {
	w.mu.Lock()
	w.onBanned = fn
	w.mu.Unlock()
}

func (w *Worker) notifyBanned() {
	w.mu.Lock()
	fn := w.onBanned
	w.mu.Unlock()
	if fn != nil {
		fn(w)
	}
}

func (w *Worker) scheduleReloginLocked() {
	w.waiting = true
	if w.relogin != nil {
		w.relogin.Stop()
	}
	w.relogin = w.deps.Clock.AfterFunc(w.deps.Transform.ScaleDown(w.cfg.ReloginDelay), func() {
		w.mu.Lock()
		w.relogin = nil
		w.mu.Unlock()
		_ = w.RefreshLogin(context.Background())
	})
}

// Scan logs in if needed, moves to sp and asks the remote service for map
// data. Scan failures follow the same ban-or-retry policy as logins with
// their own counter.
func (w *Worker) Scan(ctx context.Context, sp *spawnpoint.Spawnpoint) (*remote.MapResponse, error) {
	if err := w.EnsureLoggedIn(ctx); err != nil {
		return nil, err
	}
	w.MoveTo(sp.Lat, sp.Long, sp.Elevation)

	w.mu.Lock()
	sess := w.session
	params := remote.ScanParams{
		Position:     w.pos,
		SpawnpointID: sp.ID,
		TargetLat:    sp.Lat,
		TargetLong:   sp.Long,
	}
	w.mu.Unlock()

	resp, err := w.deps.Client.Scan(ctx, sess, params)
	if err != nil {
		if !aborted(ctx) && w.handleScanFailure(err) {
			w.notifyBanned()
		}
		return nil, fmt.Errorf("worker %d: scan %s: %w", w.ID, sp.ID, err)
	}

	w.mu.Lock()
	w.scanFailures = 0
	w.scans++
	w.mu.Unlock()
	return resp, nil
}

// handleScanFailure reports whether this failure banned the worker.
func (w *Worker) handleScanFailure(err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.banned {
		return false
	}
	w.scanFailures++
	if w.scanFailures >= w.cfg.ScanFailureLimit {
		w.banned = true
		w.log.Error("worker seems to be banned (can't scan), removing from pool",
			logx.String("username", w.creds.Username),
			logx.Int("failures", w.scanFailures),
			logx.Err(err),
		)
		return true
	}
	w.log.Debug("scan failed, will log in again", logx.Int("failures", w.scanFailures), logx.Err(err))
	w.state = LoggedOut
	w.scheduleReloginLocked()
	return false
}

// CanMoveTo reports whether reaching (lat, long) since the last move stays
// within the maximum movement speed. A worker that never moved can go anywhere.
func (w *Worker) CanMoveTo(lat, long float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.moved {
		return true
	}
	meters := geo.Distance(geo.Point{Lat: w.pos.Lat, Long: w.pos.Long}, geo.Point{Lat: lat, Long: long})
	elapsed := w.deps.Transform.ScaleUp(w.deps.Clock.Now().Sub(w.lastMoved)).Seconds()

	var speed float64
	switch {
	case meters == 0:
		speed = 0
	case elapsed <= 0:
		speed = math.Inf(1)
	default:
		speed = meters / elapsed
	}
	ok := speed <= w.cfg.MaxSpeed
	if w.log.Enabled(logx.LevelTrace) {
		w.log.Trace("movement check",
			logx.Float64("meters", meters),
			logx.Float64("seconds", elapsed),
			logx.Float64("speed", speed),
			logx.Bool("allowed", ok),
		)
	}
	return ok
}

// MoveTo moves the worker to a fuzzed version of the given coordinates.
func (w *Worker) MoveTo(lat, long, elev float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.moved {
		w.metersMove += geo.Distance(geo.Point{Lat: w.pos.Lat, Long: w.pos.Long}, geo.Point{Lat: lat, Long: long})
	}
	f := w.cfg.Fuzz
	r := w.deps.Rand
	w.pos = remote.Position{
		Lat:       geo.Round(lat+r.Range(0, f.Lat), f.LatLongDecimals),
		Long:      geo.Round(long+r.Range(0, f.Long), f.LatLongDecimals),
		Elevation: geo.Round(elev+r.Range(0, f.Elevation), f.ElevationDecimals),
	}
	w.moved = true
	w.lastMoved = w.deps.Clock.Now()
	w.movements++
}

// TryReserve reserves the worker only if it is currently free.
func (w *Worker) TryReserve() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isFreeLocked() {
		return false
	}
	w.free = false
	w.lastReserved = w.deps.Clock.Now()
	return true
}

// Free releases the worker and draws a new random extra delay.
func (w *Worker) Free() {
	w.mu.Lock()
	w.free = true
	w.lastFreed = w.deps.Clock.Now()
	w.extraDelay = w.deps.Transform.ScaleDown(w.deps.Rand.Duration(w.cfg.DelayFuzz))
	w.mu.Unlock()
}

// HasSatisfiedScanDelay reports whether the time since the last Free plus
// the current extra delay exceeds the per-worker scan delay.
func (w *Worker) HasSatisfiedScanDelay() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastFreed.IsZero() {
		return true
	}
	since := w.deps.Transform.ScaleUp(w.deps.Clock.Now().Sub(w.lastFreed))
	return since+w.extraDelay > w.cfg.ScanDelay
}

// IsFree is true when the worker is not reserved, not banned and not
// waiting on a relogin.
func (w *Worker) IsFree() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isFreeLocked()
}

func (w *Worker) isFreeLocked() bool {
	return w.free && !w.banned && !w.waiting
}

func (w *Worker) IsBanned() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.banned
}

func (w *Worker) IsWaitingRelogin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waiting
}

func (w *Worker) LoginState() LoginState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// HasBeenUsed reports whether the worker was ever reserved, freed or moved.
func (w *Worker) HasBeenUsed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.lastReserved.IsZero() || !w.lastFreed.IsZero() || w.moved
}

// Close cancels a pending relogin.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.relogin != nil {
		w.relogin.Stop()
		w.relogin = nil
	}
}

// Snapshot is a point-in-time copy of a worker's counters and flags.
type Snapshot struct {
	ID            int        `json:"id"`
	Username      string     `json:"username"`
	State         string     `json:"state"`
	Free          bool       `json:"free"`
	Banned        bool       `json:"banned"`
	Waiting       bool       `json:"waiting_relogin"`
	LoginFailures int        `json:"login_failures"`
	ScanFailures  int        `json:"scan_failures"`
	Position      *geo.Point `json:"position,omitempty"`
	MetersMoved   float64    `json:"meters_moved"`
	Movements     int        `json:"movements"`
	Scans         int        `json:"scans"`
}

func (w *Worker) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		ID:            w.ID,
		Username:      w.creds.Username,
		State:         w.state.String(),
		Free:          w.free,
		Banned:        w.banned,
		Waiting:       w.waiting,
		LoginFailures: w.loginFailures,
		ScanFailures:  w.scanFailures,
		MetersMoved:   w.metersMove,
		Movements:     w.movements,
		Scans:         w.scans,
	}
	if w.moved {
		s.Position = &geo.Point{Lat: w.pos.Lat, Long: w.pos.Long}
	}
	return s
}
