// Package remote defines the scan client contract and its implementations.
package remote

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSimulatedLoginFailure = errors.New("remote: randomly failed to log in")
	ErrSimulatedScanFailure  = errors.New("remote: randomly failed to scan")
	ErrNoSession             = errors.New("remote: no session")
)

// Credentials identify one scanning account.
type Credentials struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Session is an authenticated handle returned by Login.
type Session struct {
	Token    string
	IssuedAt time.Time
}

// Position is where the account reports itself to be.
type Position struct {
	Lat       float64 `json:"lat"`
	Long      float64 `json:"lng"`
	Elevation float64 `json:"elevation"`
}

// ScanParams describes a single map scan.
type ScanParams struct {
	Position     Position
	SpawnpointID string
	// TargetLat/TargetLong are the unfuzzed coordinates being scanned.
	TargetLat  float64
	TargetLong float64
}

// Client is the remote scanning service.
type Client interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	Scan(ctx context.Context, sess Session, p ScanParams) (*MapResponse, error)
}

// MapResponse is the parsed map payload of one scan.
type MapResponse struct {
	CurrentTimestampMs int64         `json:"current_timestamp_ms"`
	WildPokemons       []WildPokemon `json:"wild_pokemons"`
	Forts              []Fort        `json:"forts"`
}

type WildPokemon struct {
	EncounterID      string  `json:"encounter_id"`
	SpawnPointID     string  `json:"spawn_point_id"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	PokemonID        int     `json:"pokemon_id"`
	TimeTillHiddenMs int64   `json:"time_till_hidden_ms"`
	LastModifiedMs   int64   `json:"last_modified_timestamp_ms"`
}

type FortType int

const (
	FortGym FortType = iota
	FortStop
)

type Fort struct {
	ID             string   `json:"id"`
	Type           FortType `json:"type"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Enabled        bool     `json:"enabled"`
	OwnedByTeam    int      `json:"owned_by_team"`
	GuardPokemonID int      `json:"guard_pokemon_id"`
	GymPoints      int64    `json:"gym_points"`
	LastModifiedMs int64    `json:"last_modified_timestamp_ms"`
}
