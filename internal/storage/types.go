package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled      = errors.New("storage disabled")
	ErrClosed        = errors.New("storage closed")
	ErrInvalidRecord = errors.New("storage: invalid record")
)

// SimulatedNamespace prefixes tables and keys written by simulated runs.
const SimulatedNamespace = "simulated_"

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Namespace prefixes every table or key.
	Namespace string
}

// Sighting is one observed creature, unique per (SpawnpointID, EncounterID).
type Sighting struct {
	SpawnpointID  string    `json:"spawnpoint_id"`
	EncounterID   string    `json:"encounter_id"`
	PokemonID     int       `json:"pokemon_id"`
	PokemonName   string    `json:"pokemon_name"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	DisappearTime time.Time `json:"disappear_time"`
	ScannedAt     time.Time `json:"scanned_at"`
}

func (s Sighting) key() string { return s.SpawnpointID + ":" + s.EncounterID }

func (s Sighting) validate() error {
	if s.SpawnpointID == "" || s.EncounterID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Gym is the latest known state of a gym, unique per ID.
type Gym struct {
	ID             string    `json:"gym_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Enabled        bool      `json:"enabled"`
	Team           int       `json:"team_id"`
	GuardPokemonID int       `json:"guard_pokemon_id"`
	Points         int64     `json:"gym_points"`
	LastModified   time.Time `json:"last_modified"`
}

// Store is the persistence sink for scan results.
type Store interface {
	// UpsertSighting reports inserted=true only when the sighting was new.
	UpsertSighting(ctx context.Context, s Sighting) (inserted bool, err error)
	UpsertGym(ctx context.Context, g Gym) error
	// ActiveSightings returns sightings that disappear after now.
	ActiveSightings(ctx context.Context, now time.Time) ([]Sighting, error)
	Gyms(ctx context.Context) ([]Gym, error)
	// PruneSightings deletes sightings that disappeared before the cutoff.
	PruneSightings(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
