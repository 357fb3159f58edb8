package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/eventbus"
	"clairvoyance/internal/plugin"
	"clairvoyance/internal/pool"
	"clairvoyance/internal/queue"
	"clairvoyance/internal/randx"
	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
	"clairvoyance/internal/worker"
	logx "clairvoyance/pkg/logx"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClient struct {
	mu        sync.Mutex
	failLogin bool
	failScan  bool
	encounter string
}

func (c *fakeClient) Login(context.Context, remote.Credentials) (remote.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failLogin {
		return remote.Session{}, errors.New("login refused")
	}
	return remote.Session{Token: "tok"}, nil
}

func (c *fakeClient) Scan(_ context.Context, _ remote.Session, p remote.ScanParams) (*remote.MapResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failScan {
		return nil, errors.New("scan refused")
	}
	return &remote.MapResponse{
		WildPokemons: []remote.WildPokemon{{
			EncounterID:      c.encounter,
			SpawnPointID:     p.SpawnpointID,
			Latitude:         p.TargetLat,
			Longitude:        p.TargetLong,
			PokemonID:        149,
			TimeTillHiddenMs: 900000,
		}},
		Forts: []remote.Fort{{ID: "gym-1", Type: remote.FortGym, OwnedByTeam: 2}},
	}, nil
}

type memStore struct {
	mu        sync.Mutex
	sightings map[string]storage.Sighting
	gyms      map[string]storage.Gym
	upserts   int
}

func newMemStore() *memStore {
	return &memStore{sightings: map[string]storage.Sighting{}, gyms: map[string]storage.Gym{}}
}

func (m *memStore) UpsertSighting(_ context.Context, s storage.Sighting) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	k := s.SpawnpointID + ":" + s.EncounterID
	_, ok := m.sightings[k]
	m.sightings[k] = s
	return !ok, nil
}

func (m *memStore) UpsertGym(_ context.Context, g storage.Gym) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gyms[g.ID] = g
	return nil
}

func (m *memStore) ActiveSightings(context.Context, time.Time) ([]storage.Sighting, error) {
	return nil, nil
}
func (m *memStore) Gyms(context.Context) ([]storage.Gym, error)                { return nil, nil }
func (m *memStore) PruneSightings(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memStore) Close() error                                              { return nil }

type spawnRecorder struct {
	mu     sync.Mutex
	spawns []storage.Sighting
	errs   []string
}

func (r *spawnRecorder) Name() string { return "recorder" }
func (r *spawnRecorder) OnSpawn(_ context.Context, s storage.Sighting, _ *spawnpoint.Spawnpoint) {
	r.mu.Lock()
	r.spawns = append(r.spawns, s)
	r.mu.Unlock()
}
func (r *spawnRecorder) OnError(_ context.Context, msg string) {
	r.mu.Lock()
	r.errs = append(r.errs, msg)
	r.mu.Unlock()
}

func (r *spawnRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spawns), len(r.errs)
}

type harness struct {
	o      *Orchestrator
	m      *clock.Manual
	client *fakeClient
	store  *memStore
	rec    *spawnRecorder
	pool   *pool.Pool
	sp     *spawnpoint.Spawnpoint

	fatalMu sync.Mutex
	fatal   error
}

func (h *harness) fatalErr() error {
	h.fatalMu.Lock()
	defer h.fatalMu.Unlock()
	return h.fatal
}

func newHarness(t *testing.T, workers int, cfg Config, tr clock.Transform) *harness {
	t.Helper()
	h := &harness{
		m:      clock.NewManual(t0),
		client: &fakeClient{encounter: "enc-1"},
		store:  newMemStore(),
		rec:    &spawnRecorder{},
	}
	wcfg := worker.Config{
		MaxLoggedIn:       time.Hour,
		ReloginDelay:      time.Minute,
		LoginFailureLimit: 1,
		ScanFailureLimit:  3,
		MaxSpeed:          100,
		Fuzz:              worker.Fuzz{LatLongDecimals: -1, ElevationDecimals: -1},
	}
	var ws []*worker.Worker
	for i := 0; i < workers; i++ {
		ws = append(ws, worker.New(remote.Credentials{Username: "w"}, wcfg, worker.Deps{
			Clock: h.m, Transform: tr, Rand: randx.New(int64(i)), Client: h.client, Log: logx.Nop(),
		}))
	}
	h.pool = pool.New(ws, pool.Greedy)
	q := queue.New(queue.Config{MaxLength: 10}, queue.Deps{Clock: h.m, Transform: tr, Rand: randx.New(1), Log: logx.Nop()})
	reg := plugin.NewRegistry(logx.Nop())
	require.NoError(t, reg.Register(h.rec))

	h.sp = spawnpoint.New("sp-1", 40.0, -73.0, 5, 30*time.Minute, spawnpoint.Env{Clock: h.m, Transform: tr, Log: logx.Nop()})
	h.o = New(cfg, Deps{
		Clock:     h.m,
		Transform: tr,
		Log:       logx.Nop(),
		Bus:       eventbus.New(),
		Pool:      h.pool,
		Queue:     q,
		Store:     h.store,
		Plugins:   reg,
		OnFatal: func(err error) {
			h.fatalMu.Lock()
			h.fatal = err
			h.fatalMu.Unlock()
		},
	})
	require.NoError(t, h.o.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.o.Stop(ctx)
	})
	return h
}

func (h *harness) activate() {
	h.o.HandleSpawn(h.sp)
	h.m.Advance(0)
}

func (h *harness) waitProcessed(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return h.o.Stats().SpawnsProcessed == n }, 2*time.Second, time.Millisecond)
}

func TestActivationScansPersistsAndDispatches(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 1, Config{}, clock.Identity)

	h.activate()
	h.waitProcessed(t, 1)
	require.Eventually(t, func() bool {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		return len(h.store.gyms) == 1
	}, 2*time.Second, time.Millisecond)

	st := h.o.Stats()
	assert.EqualValues(t, 1, st.SpawnsSeen)
	assert.EqualValues(t, 1, st.SpawnsScanned)
	assert.EqualValues(t, 1, st.SightingsNew)
	assert.InDelta(t, 100.0, st.ScanPercentage, 0.001)

	spawns, _ := h.rec.counts()
	require.Equal(t, 1, spawns)
	h.rec.mu.Lock()
	got := h.rec.spawns[0]
	h.rec.mu.Unlock()
	assert.Equal(t, "Dragonite", got.PokemonName)
	assert.Equal(t, t0.Add(15*time.Minute), got.DisappearTime)

	assert.True(t, h.pool.Workers()[0].Snapshot().Free, "worker freed after completion")

	// The same encounter again is stored but not announced twice.
	h.m.Advance(time.Second)
	h.activate()
	h.waitProcessed(t, 2)
	require.Eventually(t, func() bool {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		return h.store.upserts == 2
	}, 2*time.Second, time.Millisecond)
	spawns, _ = h.rec.counts()
	assert.Equal(t, 1, spawns)
	assert.EqualValues(t, 2, h.o.Stats().SpawnsScanned)
}

func TestPausedActivationIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 1, Config{}, clock.Identity)
	require.True(t, h.o.Pause().Set(true))
	require.False(t, h.o.Pause().Set(true))

	h.activate()
	st := h.o.Stats()
	assert.Zero(t, st.SpawnsSeen)
	assert.Zero(t, st.SpawnsProcessed)
	assert.True(t, st.Paused)
	assert.Zero(t, h.m.Pending())
}

func TestNoEligibleWorkerDropsActivation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0, Config{}, clock.Identity)

	h.activate()
	st := h.o.Stats()
	assert.EqualValues(t, 1, st.SpawnsSeen)
	assert.EqualValues(t, 1, st.SpawnsProcessed)
	assert.Zero(t, st.SpawnsScanned)
	assert.EqualValues(t, 1, st.AllocationFailures)
}

func TestSpawnScanDelayIsScaled(t *testing.T) {
	t.Parallel()
	tr := clock.Transform{Simulate: true, Multiplier: 10}
	h := newHarness(t, 1, Config{SpawnScanDelay: 100 * time.Second}, tr)

	h.o.HandleSpawn(h.sp)
	h.m.Advance(9 * time.Second)
	assert.Zero(t, h.o.Stats().SpawnsProcessed)
	h.m.Advance(time.Second)
	h.waitProcessed(t, 1)
}

func TestScanFailureFreesWorker(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 1, Config{}, clock.Identity)
	h.client.mu.Lock()
	h.client.failScan = true
	h.client.mu.Unlock()

	h.activate()
	h.waitProcessed(t, 1)

	st := h.o.Stats()
	assert.Zero(t, st.SpawnsScanned)
	assert.EqualValues(t, 1, st.Queue.Failed)
	assert.True(t, h.pool.Workers()[0].Snapshot().Free)
	spawns, _ := h.rec.counts()
	assert.Zero(t, spawns)
}

func TestHealthCheckEndsRunWhenTooManyBanned(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 1, Config{BannedLimit: 0}, clock.Identity)
	h.client.mu.Lock()
	h.client.failLogin = true
	h.client.mu.Unlock()

	h.o.HealthCheck()
	require.NoError(t, h.fatalErr())

	h.activate()
	h.waitProcessed(t, 1)
	require.True(t, h.pool.Workers()[0].IsBanned())

	_, errs := h.rec.counts()
	assert.Equal(t, 1, errs, "ban announced to plugins once")

	h.o.HealthCheck()
	require.ErrorIs(t, h.fatalErr(), ErrTooManyBanned)
}

func TestBanOnReloginTimerIsAnnounced(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 1, Config{}, clock.Identity)
	w := h.pool.Workers()[0]
	h.client.mu.Lock()
	h.client.failScan = true
	h.client.mu.Unlock()

	h.activate()
	h.waitProcessed(t, 1)
	require.True(t, w.IsWaitingRelogin())
	require.False(t, w.IsBanned())

	h.client.mu.Lock()
	h.client.failLogin = true
	h.client.mu.Unlock()
	h.m.Advance(time.Minute)

	require.True(t, w.IsBanned())
	_, errs := h.rec.counts()
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, h.o.Stats().WorkersBanned)

	h.m.Advance(time.Hour)
	_, errs = h.rec.counts()
	assert.Equal(t, 1, errs, "ban announced once")
}

func TestSimulationEndsAfterDuration(t *testing.T) {
	t.Parallel()
	tr := clock.Transform{Simulate: true, Multiplier: 10}
	h := newHarness(t, 0, Config{StatsInterval: time.Minute, SimulationDuration: 5 * time.Minute}, tr)

	// Stats tick every 6s of clock time (1 nominal minute).
	h.m.Advance(30 * time.Second)
	require.NoError(t, h.fatalErr())
	h.m.Advance(6 * time.Second)
	require.ErrorIs(t, h.fatalErr(), ErrSimulationComplete)
	assert.InDelta(t, 6.0, h.o.Stats().MinutesRunning, 0.001)
}

func TestStopFailsPendingWork(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 1, Config{SpawnScanDelay: time.Minute}, clock.Identity)
	h.o.HandleSpawn(h.sp)
	require.Equal(t, 1, h.m.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.o.Stop(ctx))
	assert.Zero(t, h.m.Pending(), "pending allocation cancelled")

	h.o.HandleSpawn(h.sp)
	assert.Zero(t, h.m.Pending())
}
