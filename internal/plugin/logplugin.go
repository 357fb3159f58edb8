package plugin

import (
	"context"

	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
	logx "clairvoyance/pkg/logx"
)

// LogListener writes every new sighting to the log.
type LogListener struct {
	log logx.Logger
}

func NewLogListener(log logx.Logger) *LogListener {
	return &LogListener{log: log.With(logx.String("plugin", "log"))}
}

func (l *LogListener) Name() string { return "log" }

func (l *LogListener) OnSpawn(_ context.Context, s storage.Sighting, sp *spawnpoint.Spawnpoint) {
	l.log.Info("new sighting",
		logx.Int("pokemon_id", s.PokemonID),
		logx.String("pokemon", s.PokemonName),
		logx.String("spawnpoint", sp.ID),
		logx.Time("disappear", s.DisappearTime),
	)
}

func (l *LogListener) OnError(_ context.Context, msg string) {}
