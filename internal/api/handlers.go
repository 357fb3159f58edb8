package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clairvoyance/internal/pokedex"
	"clairvoyance/internal/storage"
	logx "clairvoyance/pkg/logx"
)

// Router builds the chi router for cfg.
func Router(cfg Config, deps Deps) http.Handler {
	h := &handlers{deps: deps, log: deps.Log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
		r.Get("/raw_data", h.rawData)
		r.Get("/stats", h.stats)
		r.Post("/pause", h.setPaused(true))
		r.Post("/resume", h.setPaused(false))
		r.Get("/search_control", h.searchControlGet)
		r.Post("/search_control", h.searchControlPost)
		if deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics)
		}
		if cfg.Pprof {
			mountPprof(r, cfg.PprofPrefix)
		}
	})
	return r
}

type handlers struct {
	deps Deps
	log  logx.Logger
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if h.log.Enabled(logx.LevelDebug) {
			h.log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
			)
		}
	})
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) rawData(w http.ResponseWriter, r *http.Request) {
	out := RawData{Pokemons: []Pokemon{}, Gyms: []Gym{}, Scanned: []any{}}
	if h.deps.Store == nil {
		writeOutput(w, out)
		return
	}
	now := h.deps.Clock.Now()
	sightings, err := h.deps.Store.ActiveSightings(r.Context(), now)
	if err != nil {
		h.log.Error("raw_data: query sightings", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load sightings")
		return
	}
	gyms, err := h.deps.Store.Gyms(r.Context())
	if err != nil {
		h.log.Error("raw_data: query gyms", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load gyms")
		return
	}
	for _, s := range sightings {
		out.Pokemons = append(out.Pokemons, h.pokemon(s, now))
	}
	for _, g := range gyms {
		out.Gyms = append(out.Gyms, Gym{
			GymID:          g.ID,
			Enabled:        g.Enabled,
			GuardPokemonID: g.GuardPokemonID,
			GymPoints:      g.Points,
			LastModified:   g.LastModified.UnixMilli(),
			Latitude:       g.Latitude,
			Longitude:      g.Longitude,
			TeamID:         g.Team,
		})
	}
	writeOutput(w, out)
}

// pokemon converts a stored sighting. In simulation the remaining lifetime
// is scaled down so map countdowns run at simulated speed.
func (h *handlers) pokemon(s storage.Sighting, now time.Time) Pokemon {
	disappear := s.DisappearTime
	if h.deps.Transform.Simulate {
		disappear = now.Add(h.deps.Transform.ScaleDown(s.DisappearTime.Sub(now)))
	}
	p := Pokemon{
		DisappearTime: disappear.UnixMilli(),
		EncounterID:   s.EncounterID,
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		PokemonID:     s.PokemonID,
		PokemonName:   s.PokemonName,
		PokemonTypes:  []PokemonType{},
		SpawnpointID:  s.SpawnpointID,
	}
	if e, ok := pokedex.Lookup(s.PokemonID); ok {
		for _, t := range e.Types {
			p.PokemonTypes = append(p.PokemonTypes, PokemonType{Type: t, Color: pokedex.TypeColor(t)})
		}
	}
	return p
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeOutput(w, h.deps.Stats())
}

func (h *handlers) setPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		changed := h.deps.Pause.Set(paused)
		if changed {
			h.log.Info("scanning pause changed via api", logx.Bool("paused", paused))
		}
		writeOutput(w, map[string]bool{"paused": paused, "changed": changed})
	}
}

// search_control keeps the map frontend's toggle working: status is true
// while scanning is active.
func (h *handlers) searchControlGet(w http.ResponseWriter, _ *http.Request) {
	writeOutput(w, map[string]bool{"status": !h.deps.Pause.Paused()})
}

func (h *handlers) searchControlPost(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "off":
		if h.deps.Pause.Set(true) {
			h.log.Info("scanning paused")
		}
	case "on":
		if h.deps.Pause.Set(false) {
			h.log.Info("scanning started")
		}
	}
	writeOutput(w, h.deps.Pause.Paused())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"msg": msg})
}

func writeOutput(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
