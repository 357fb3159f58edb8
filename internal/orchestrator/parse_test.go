package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/worker"
)

func TestParseSightings(t *testing.T) {
	t.Parallel()
	sp := spawnpoint.New("sp-9", 1.5, 2.5, 0, 0, spawnpoint.Env{})
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	resp := &remote.MapResponse{WildPokemons: []remote.WildPokemon{
		{EncounterID: "a", SpawnPointID: "other", Latitude: 3, Longitude: 4, PokemonID: 16, TimeTillHiddenMs: 60000},
		{EncounterID: "b", PokemonID: 999, TimeTillHiddenMs: 1000},
		{EncounterID: "", PokemonID: 1},
	}}

	got := ParseSightings(resp, sp, now)
	require.Len(t, got, 2)

	assert.Equal(t, "other", got[0].SpawnpointID)
	assert.Equal(t, "Pidgey", got[0].PokemonName)
	assert.Equal(t, now.Add(time.Minute), got[0].DisappearTime)
	assert.Equal(t, 3.0, got[0].Latitude)

	assert.Equal(t, "sp-9", got[1].SpawnpointID)
	assert.Equal(t, "#999", got[1].PokemonName)
	assert.Equal(t, 1.5, got[1].Latitude)
	assert.Equal(t, 2.5, got[1].Longitude)

	assert.Nil(t, ParseSightings(nil, sp, now))
}

func TestParseGymsSkipsStops(t *testing.T) {
	t.Parallel()
	resp := &remote.MapResponse{Forts: []remote.Fort{
		{ID: "g", Type: remote.FortGym, OwnedByTeam: 3, GymPoints: 1200, LastModifiedMs: 1000},
		{ID: "s", Type: remote.FortStop},
	}}
	got := ParseGyms(resp)
	require.Len(t, got, 1)
	assert.Equal(t, "g", got[0].ID)
	assert.Equal(t, 3, got[0].Team)
	assert.EqualValues(t, 1200, got[0].Points)
	assert.Equal(t, time.UnixMilli(1000), got[0].LastModified)
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	snaps := []worker.Snapshot{
		{ID: 1, Scans: 10},
		{ID: 2, Scans: 0},
		{ID: 3, Scans: 4},
	}
	r := summarize(snaps, 2, func(s worker.Snapshot) float64 { return float64(s.Scans) })
	assert.InDelta(t, 14.0/3/2, r.Average, 1e-9)
	assert.Equal(t, Extreme{WorkerID: 1, Value: 5}, r.Highest)
	assert.Equal(t, Extreme{WorkerID: 3, Value: 2}, r.Lowest)

	assert.Equal(t, Rate{}, summarize(nil, 1, func(worker.Snapshot) float64 { return 1 }))
}
