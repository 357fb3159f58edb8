package api

import (
	"net/http"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/orchestrator"
	"clairvoyance/internal/storage"
	logx "clairvoyance/pkg/logx"
)

// Config controls the HTTP surface.
//
// Binding to a non-loopback address requires Token unless AllowInsecure is
// set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	Pprof       bool
	PprofPrefix string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Deps are the read and control hooks the handlers use. Store and Metrics
// may be nil.
type Deps struct {
	Clock     clock.Clock
	Transform clock.Transform
	Log       logx.Logger
	Stats     func() orchestrator.Stats
	Pause     *orchestrator.Switch
	Store     storage.Store
	Metrics   http.Handler
}

// PokemonType is a type badge in the map payload.
type PokemonType struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// Pokemon is one active sighting in the map payload.
type Pokemon struct {
	DisappearTime int64         `json:"disappear_time"`
	EncounterID   string        `json:"encounter_id"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	PokemonID     int           `json:"pokemon_id"`
	PokemonName   string        `json:"pokemon_name"`
	PokemonTypes  []PokemonType `json:"pokemon_types"`
	SpawnpointID  string        `json:"spawnpoint_id"`
}

type Gym struct {
	GymID          string  `json:"gym_id"`
	Enabled        bool    `json:"enabled"`
	GuardPokemonID int     `json:"guard_pokemon_id"`
	GymPoints      int64   `json:"gym_points"`
	LastModified   int64   `json:"last_modified"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	TeamID         int     `json:"team_id"`
}

// RawData is the GET /raw_data response.
type RawData struct {
	Pokemons []Pokemon `json:"pokemons"`
	Gyms     []Gym     `json:"gyms"`
	Scanned  []any     `json:"scanned"`
}
