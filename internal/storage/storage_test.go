package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	logx "clairvoyance/pkg/logx"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	file, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "data.json")}, logx.Nop())
	require.NoError(t, err)
	sqlite, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "data.db")}, logx.Nop())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	red := newRedisStore(rdb, "", logx.Nop())

	stores := map[string]Store{"file": file, "sqlite": sqlite, "redis": red}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoresSightingLifecycle(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			a := Sighting{SpawnpointID: "sp1", EncounterID: "e1", PokemonID: 16, PokemonName: "Pidgey",
				Latitude: 1, Longitude: 2, DisappearTime: base.Add(10 * time.Minute), ScannedAt: base}
			inserted, err := st.UpsertSighting(ctx, a)
			require.NoError(t, err)
			require.True(t, inserted)

			a.PokemonName = "Pidgey2"
			inserted, err = st.UpsertSighting(ctx, a)
			require.NoError(t, err)
			require.False(t, inserted, "duplicate must not count as insert")

			old := Sighting{SpawnpointID: "sp2", EncounterID: "e2", PokemonID: 19,
				DisappearTime: base.Add(-time.Hour), ScannedAt: base.Add(-2 * time.Hour)}
			_, err = st.UpsertSighting(ctx, old)
			require.NoError(t, err)

			active, err := st.ActiveSightings(ctx, base)
			require.NoError(t, err)
			require.Len(t, active, 1)
			require.Equal(t, "Pidgey2", active[0].PokemonName)
			require.True(t, active[0].DisappearTime.Equal(a.DisappearTime))

			n, err := st.PruneSightings(ctx, base)
			require.NoError(t, err)
			require.EqualValues(t, 1, n)

			n, err = st.PruneSightings(ctx, base)
			require.NoError(t, err)
			require.EqualValues(t, 0, n)
		})
	}
}

func TestStoresGymUpsert(t *testing.T) {
	ctx := context.Background()
	mod := time.UnixMilli(1700000000000)

	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.UpsertGym(ctx, Gym{ID: "g1", Team: 1, Points: 100, LastModified: mod}))
			require.NoError(t, st.UpsertGym(ctx, Gym{ID: "g1", Team: 2, Points: 250, Enabled: true, LastModified: mod}))
			require.NoError(t, st.UpsertGym(ctx, Gym{ID: "g0", LastModified: mod}))

			gyms, err := st.Gyms(ctx)
			require.NoError(t, err)
			require.Len(t, gyms, 2)
			require.Equal(t, "g0", gyms[0].ID)
			require.Equal(t, 2, gyms[1].Team)
			require.EqualValues(t, 250, gyms[1].Points)
			require.True(t, gyms[1].Enabled)

			require.ErrorIs(t, st.UpsertGym(ctx, Gym{}), ErrInvalidRecord)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	cfg := Config{Driver: "file", Path: path}
	future := time.Now().Add(time.Hour)

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	_, err = st.UpsertSighting(ctx, Sighting{SpawnpointID: "a", EncounterID: "1", DisappearTime: future})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	inserted, err := st.UpsertSighting(ctx, Sighting{SpawnpointID: "a", EncounterID: "1", DisappearTime: future})
	require.NoError(t, err)
	require.False(t, inserted)
}

func TestNamespacesAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")
	future := time.Now().Add(time.Hour)

	prod, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer prod.Close()
	_, err = prod.UpsertSighting(ctx, Sighting{SpawnpointID: "a", EncounterID: "1", DisappearTime: future})
	require.NoError(t, err)
	require.NoError(t, prod.Close())

	sim, err := Open(Config{Driver: "sqlite", Path: path, Namespace: SimulatedNamespace}, logx.Nop())
	require.NoError(t, err)
	defer sim.Close()
	active, err := sim.ActiveSightings(ctx, time.Now())
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	require.Nil(t, st)

	_, err = Open(Config{Driver: "bogus"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "file", Path: "x", Namespace: "bad-ns;"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)
}
