package remote

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/randx"
)

// Simulated stands in for the remote service. Logins and scans fail at the
// configured rates, and a successful scan reports one sighting at the target.
type Simulated struct {
	Clock     clock.Clock
	Transform clock.Transform
	Rand      *randx.Source

	RequestDuration         time.Duration
	LoginFailureProbability float64
	ScanFailureProbability  float64
}

func (s *Simulated) Login(ctx context.Context, creds Credentials) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if s.Rand.Chance(s.LoginFailureProbability) {
		return Session{}, fmt.Errorf("%s: %w", creds.Username, ErrSimulatedLoginFailure)
	}
	return Session{
		Token:    "sim-" + strconv.FormatUint(s.Rand.Uint64(), 36),
		IssuedAt: s.Clock.Now(),
	}, nil
}

func (s *Simulated) Scan(ctx context.Context, sess Session, p ScanParams) (*MapResponse, error) {
	if sess.Token == "" {
		return nil, ErrNoSession
	}
	if err := clock.Sleep(ctx, s.Clock, s.Transform.ScaleDown(s.RequestDuration)); err != nil {
		return nil, err
	}
	if s.Rand.Chance(s.ScanFailureProbability) {
		return nil, ErrSimulatedScanFailure
	}

	nowMs := s.Clock.Now().UnixMilli()
	return &MapResponse{
		CurrentTimestampMs: nowMs,
		WildPokemons: []WildPokemon{{
			EncounterID:      strconv.FormatUint(s.Rand.Uint64(), 10),
			SpawnPointID:     p.SpawnpointID,
			Latitude:         p.TargetLat,
			Longitude:        p.TargetLong,
			PokemonID:        s.Rand.IntRange(1, 150),
			TimeTillHiddenMs: int64(s.Rand.IntRange(600000, 900000)),
			LastModifiedMs:   nowMs,
		}},
	}, nil
}
