package spawnpoint

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/geo"
	logx "clairvoyance/pkg/logx"
)

func hourStart() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func newTestSpawnpoint(t *testing.T, now time.Time, offset, lookback time.Duration) (*Spawnpoint, *clock.Manual, *atomic.Int32) {
	t.Helper()
	m := clock.NewManual(now)
	sp := New("sp1", 40.0, -74.0, 10, offset, Env{Clock: m, Lookback: lookback, Log: logx.Nop()})
	var fires atomic.Int32
	sp.SetSpawnListener(func(*Spawnpoint) { fires.Add(1) })
	return sp, m, &fires
}

func TestLookbackFiresOnceThenHourly(t *testing.T) {
	t.Parallel()
	// Offset :30, started at :35 with a 10 minute lookback.
	start := hourStart().Add(35 * time.Minute)
	sp, m, fires := newTestSpawnpoint(t, start, 30*time.Minute, 10*time.Minute)

	sp.StartSpawnTimer()
	if sp.State() != StateArmed {
		t.Fatalf("State = %v, want armed", sp.State())
	}
	m.Advance(0)
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires after start = %d, want 1", got)
	}

	// Nothing until :30 of the next hour.
	m.Set(hourStart().Add(time.Hour + 30*time.Minute - time.Nanosecond))
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires before next activation = %d, want 1", got)
	}
	m.Set(hourStart().Add(time.Hour + 30*time.Minute))
	if got := fires.Load(); got != 2 {
		t.Fatalf("fires at next activation = %d, want 2", got)
	}
	m.Set(hourStart().Add(2*time.Hour + 30*time.Minute))
	if got := fires.Load(); got != 3 {
		t.Fatalf("fires one hour later = %d, want 3", got)
	}
}

func TestOutsideLookbackDoesNotFire(t *testing.T) {
	t.Parallel()
	start := hourStart().Add(50 * time.Minute)
	sp, m, fires := newTestSpawnpoint(t, start, 30*time.Minute, 10*time.Minute)
	sp.StartSpawnTimer()
	m.Advance(0)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d, want 0", got)
	}
	m.Set(hourStart().Add(time.Hour + 30*time.Minute))
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d, want 1", got)
	}
}

func TestStopCancelsLookbackFire(t *testing.T) {
	t.Parallel()
	start := hourStart().Add(35 * time.Minute)
	sp, m, fires := newTestSpawnpoint(t, start, 30*time.Minute, 10*time.Minute)
	sp.StartSpawnTimer()
	sp.StopSpawnTimer()
	m.Advance(time.Minute)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires after stop = %d, want 0", got)
	}
}

func TestRestartFiresLookbackOnce(t *testing.T) {
	t.Parallel()
	start := hourStart().Add(35 * time.Minute)
	sp, m, fires := newTestSpawnpoint(t, start, 30*time.Minute, 10*time.Minute)
	sp.StartSpawnTimer()
	sp.StartSpawnTimer()
	m.Advance(time.Minute)
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires after restart = %d, want 1", got)
	}
}

func TestFutureOffsetNeverFiresEarly(t *testing.T) {
	t.Parallel()
	start := hourStart().Add(5 * time.Minute)
	sp, m, fires := newTestSpawnpoint(t, start, 40*time.Minute, 10*time.Minute)
	sp.StartSpawnTimer()
	m.Set(hourStart().Add(40*time.Minute - time.Millisecond))
	if got := fires.Load(); got != 0 {
		t.Fatalf("fired early: %d", got)
	}
	m.Set(hourStart().Add(40 * time.Minute))
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires at activation = %d, want 1", got)
	}
}

func TestSimulatedTimeScalesDelays(t *testing.T) {
	t.Parallel()
	start := hourStart()
	m := clock.NewManual(start)
	env := Env{Clock: m, Transform: clock.Transform{Simulate: true, Multiplier: 60}, Log: logx.Nop()}
	sp := New("sp", 0, 0, 0, 30*time.Minute, env)
	var fires atomic.Int32
	sp.SetSpawnListener(func(*Spawnpoint) { fires.Add(1) })
	sp.StartSpawnTimer()

	// 30 nominal minutes at 60x is 30 seconds; each following hour is one minute.
	m.Set(start.Add(30 * time.Second))
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d, want 1", got)
	}
	m.Set(start.Add(30*time.Second + 3*time.Minute))
	if got := fires.Load(); got != 4 {
		t.Fatalf("fires = %d, want 4", got)
	}
}

func TestStopSpawnTimer(t *testing.T) {
	t.Parallel()
	sp, m, fires := newTestSpawnpoint(t, hourStart(), 10*time.Minute, 0)
	sp.StopSpawnTimer() // nothing running
	sp.StartSpawnTimer()
	sp.StopSpawnTimer()
	sp.StopSpawnTimer()
	if sp.State() != StateIdle {
		t.Fatalf("State = %v, want idle", sp.State())
	}
	m.Advance(3 * time.Hour)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires after stop = %d, want 0", got)
	}

	// Restart after the hourly timer is running.
	sp.StartSpawnTimer()
	m.Advance(2 * time.Hour)
	before := fires.Load()
	sp.StopSpawnTimer()
	m.Advance(3 * time.Hour)
	if fires.Load() != before {
		t.Fatalf("fires changed after stop: %d -> %d", before, fires.Load())
	}
	if m.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", m.Pending())
	}
}

func TestFireSpawnRecoversPanic(t *testing.T) {
	t.Parallel()
	sp := New("sp", 0, 0, 0, 0, Env{Clock: clock.NewManual(hourStart()), Log: logx.Nop()})
	sp.FireSpawn() // no listener
	sp.SetSpawnListener(func(*Spawnpoint) { panic("listener bug") })
	sp.FireSpawn()
}

func TestNextActivation(t *testing.T) {
	t.Parallel()
	sp := New("sp", 0, 0, 0, 30*time.Minute, Env{Log: logx.Nop()})
	if got := sp.NextActivation(hourStart().Add(10 * time.Minute)); !got.Equal(hourStart().Add(30 * time.Minute)) {
		t.Fatalf("NextActivation = %v", got)
	}
	if got := sp.NextActivation(hourStart().Add(31 * time.Minute)); !got.Equal(hourStart().Add(90 * time.Minute)) {
		t.Fatalf("NextActivation = %v", got)
	}
}

func TestParseRecords(t *testing.T) {
	t.Parallel()
	jsonData := []byte(`[{"sid":"a1","lat":40.1,"lng":-74.2,"elevation":12.5,"cell":"9f3","time":1800}]`)
	recs, err := ParseRecords(jsonData)
	if err != nil {
		t.Fatalf("ParseRecords(json) error: %v", err)
	}
	if len(recs) != 1 || recs[0].SID != "a1" || recs[0].Time != 1800 || recs[0].Lng != -74.2 {
		t.Fatalf("recs = %+v", recs)
	}

	yamlData := []byte("- sid: b2\n  lat: 1\n  lng: 2\n  time: 59\n")
	recs, err = ParseRecords(yamlData)
	if err != nil {
		t.Fatalf("ParseRecords(yaml) error: %v", err)
	}
	sps := Build(recs, Env{Log: logx.Nop()})
	if len(sps) != 1 || sps[0].Offset != 59*time.Second {
		t.Fatalf("Build = %+v", sps)
	}

	bad := []struct {
		name string
		data string
	}{
		{"empty sid", `[{"sid":"","time":1}]`},
		{"offset too large", `[{"sid":"x","time":3600}]`},
		{"latitude", `[{"sid":"x","lat":91,"time":1}]`},
		{"duplicate", `[{"sid":"x","time":1},{"sid":"x","time":2}]`},
	}
	for _, tt := range bad {
		if _, err := ParseRecords([]byte(tt.data)); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%s: err = %v, want ErrInvalidRecord", tt.name, err)
		}
	}
}

func TestFilterWithinRadius(t *testing.T) {
	t.Parallel()
	recs := []Record{
		{SID: "near", Lat: 0.0005, Lng: 0},
		{SID: "far", Lat: 0.05, Lng: 0},
	}
	got := FilterWithinRadius(recs, geo.Point{}, 200)
	if len(got) != 1 || got[0].SID != "near" {
		t.Fatalf("FilterWithinRadius = %+v", got)
	}
	if got := FilterWithinRadius(recs, geo.Point{}, 0); len(got) != 2 {
		t.Fatalf("radius 0 kept %d, want 2", len(got))
	}
}
