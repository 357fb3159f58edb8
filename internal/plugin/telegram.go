package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"clairvoyance/internal/notifier"
	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
	logx "clairvoyance/pkg/logx"
)

// Notifier is the outbound message queue used by chat listeners.
type Notifier interface {
	Notify(ctx context.Context, m notifier.Message) error
}

type TelegramConfig struct {
	ChatID   int64
	ThreadID int
	// Subscriptions lists species numbers to announce. Empty announces none.
	Subscriptions []int
	AnnounceStart bool
}

// TelegramListener posts subscribed spawns and errors to one chat.
type TelegramListener struct {
	cfg  TelegramConfig
	subs map[int]bool
	out  Notifier
	log  logx.Logger
}

func NewTelegramListener(cfg TelegramConfig, out Notifier, log logx.Logger) *TelegramListener {
	subs := make(map[int]bool, len(cfg.Subscriptions))
	for _, id := range cfg.Subscriptions {
		subs[id] = true
	}
	return &TelegramListener{cfg: cfg, subs: subs, out: out, log: log.With(logx.String("plugin", "telegram"))}
}

func (t *TelegramListener) Name() string { return "telegram" }

func (t *TelegramListener) Start(ctx context.Context) error {
	if !t.cfg.AnnounceStart {
		return nil
	}
	subs, _ := json.Marshal(t.cfg.Subscriptions)
	msg := fmt.Sprintf("Clairvoyance notifier initialized. Subscriptions: %s", subs)
	t.log.Info(msg)
	return t.send(ctx, msg, 0)
}

func (t *TelegramListener) Stop(context.Context) error { return nil }

func (t *TelegramListener) OnSpawn(ctx context.Context, s storage.Sighting, sp *spawnpoint.Spawnpoint) {
	if !t.subs[s.PokemonID] {
		return
	}
	if err := t.send(ctx, SpawnMessage(s, sp), 0); err != nil {
		t.log.Warn("spawn notification not queued", logx.Err(err))
	}
}

func (t *TelegramListener) OnError(ctx context.Context, msg string) {
	if err := t.send(ctx, "ERROR: "+msg, 7); err != nil {
		t.log.Debug("error notification not queued", logx.Err(err))
	}
}

func (t *TelegramListener) send(ctx context.Context, text string, priority int) error {
	return t.out.Notify(ctx, notifier.Message{
		ChatID:         t.cfg.ChatID,
		ThreadID:       t.cfg.ThreadID,
		Text:           text,
		Priority:       priority,
		DisablePreview: true,
	})
}

// SpawnMessage renders "<name> despawns at :MM - <maps link>".
func SpawnMessage(s storage.Sighting, sp *spawnpoint.Spawnpoint) string {
	name := s.PokemonName
	if name == "" {
		name = "#" + strconv.Itoa(s.PokemonID)
	}
	lat, long := s.Latitude, s.Longitude
	if sp != nil {
		lat, long = sp.Lat, sp.Long
	}
	return fmt.Sprintf("%s despawns at :%02d - http://maps.google.com/maps?z=12&t=m&q=loc:%s+%s",
		name,
		s.DisappearTime.Minute(),
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(long, 'f', -1, 64),
	)
}
