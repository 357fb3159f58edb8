package orchestrator

import (
	"time"

	"clairvoyance/internal/pokedex"
	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
)

// ParseSightings converts the wild entries of a scan into sightings.
// Entries without an encounter id are skipped; a missing spawn point id
// falls back to the scanned spawnpoint.
func ParseSightings(resp *remote.MapResponse, sp *spawnpoint.Spawnpoint, now time.Time) []storage.Sighting {
	if resp == nil {
		return nil
	}
	out := make([]storage.Sighting, 0, len(resp.WildPokemons))
	for _, w := range resp.WildPokemons {
		if w.EncounterID == "" {
			continue
		}
		spID := w.SpawnPointID
		if spID == "" && sp != nil {
			spID = sp.ID
		}
		lat, long := w.Latitude, w.Longitude
		if lat == 0 && long == 0 && sp != nil {
			lat, long = sp.Lat, sp.Long
		}
		out = append(out, storage.Sighting{
			SpawnpointID:  spID,
			EncounterID:   w.EncounterID,
			PokemonID:     w.PokemonID,
			PokemonName:   pokedex.Name(w.PokemonID),
			Latitude:      lat,
			Longitude:     long,
			DisappearTime: now.Add(time.Duration(w.TimeTillHiddenMs) * time.Millisecond),
			ScannedAt:     now,
		})
	}
	return out
}

// ParseGyms returns the gym forts of a scan.
func ParseGyms(resp *remote.MapResponse) []storage.Gym {
	if resp == nil {
		return nil
	}
	var out []storage.Gym
	for _, f := range resp.Forts {
		if f.Type != remote.FortGym || f.ID == "" {
			continue
		}
		out = append(out, storage.Gym{
			ID:             f.ID,
			Latitude:       f.Latitude,
			Longitude:      f.Longitude,
			Enabled:        f.Enabled,
			Team:           f.OwnedByTeam,
			GuardPokemonID: f.GuardPokemonID,
			Points:         f.GymPoints,
			LastModified:   time.UnixMilli(f.LastModifiedMs),
		})
	}
	return out
}
