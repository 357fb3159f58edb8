package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "clairvoyance/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	ns  string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, ns: cfg.Namespace}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, strings.ReplaceAll(migrationsSQL, "{{ns}}", s.ns))
	return err
}

func (s *sqliteStore) table(name string) string { return s.ns + name }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertSighting(ctx context.Context, v Sighting) (bool, error) {
	if err := v.validate(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+s.table("sightings")+`
		 (spawnpoint_id, encounter_id, pokemon_id, pokemon_name, latitude, longitude, disappear_ms, scanned_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		v.SpawnpointID, v.EncounterID, v.PokemonID, nullStr(v.PokemonName), v.Latitude, v.Longitude,
		v.DisappearTime.UnixMilli(), v.ScannedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert sighting: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE `+s.table("sightings")+`
		 SET pokemon_id=?, pokemon_name=?, latitude=?, longitude=?, disappear_ms=?, scanned_ms=?
		 WHERE spawnpoint_id=? AND encounter_id=?`,
		v.PokemonID, nullStr(v.PokemonName), v.Latitude, v.Longitude,
		v.DisappearTime.UnixMilli(), v.ScannedAt.UnixMilli(), v.SpawnpointID, v.EncounterID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update sighting: %w", err)
	}
	return false, nil
}

func (s *sqliteStore) UpsertGym(ctx context.Context, g Gym) error {
	if g.ID == "" {
		return ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table("gyms")+`
		 (gym_id, latitude, longitude, enabled, team_id, guard_pokemon_id, gym_points, last_modified_ms)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(gym_id) DO UPDATE SET
		   latitude=excluded.latitude, longitude=excluded.longitude, enabled=excluded.enabled,
		   team_id=excluded.team_id, guard_pokemon_id=excluded.guard_pokemon_id,
		   gym_points=excluded.gym_points, last_modified_ms=excluded.last_modified_ms`,
		g.ID, g.Latitude, g.Longitude, g.Enabled, g.Team, g.GuardPokemonID, g.Points, g.LastModified.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert gym: %w", err)
	}
	return nil
}

func (s *sqliteStore) ActiveSightings(ctx context.Context, now time.Time) ([]Sighting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT spawnpoint_id, encounter_id, pokemon_id, COALESCE(pokemon_name, ''), latitude, longitude, disappear_ms, scanned_ms
		 FROM `+s.table("sightings")+` WHERE disappear_ms > ? ORDER BY disappear_ms`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var v Sighting
		var disappear, scanned int64
		if err := rows.Scan(&v.SpawnpointID, &v.EncounterID, &v.PokemonID, &v.PokemonName,
			&v.Latitude, &v.Longitude, &disappear, &scanned); err != nil {
			return nil, err
		}
		v.DisappearTime = time.UnixMilli(disappear)
		v.ScannedAt = time.UnixMilli(scanned)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Gyms(ctx context.Context) ([]Gym, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gym_id, latitude, longitude, enabled, team_id, guard_pokemon_id, gym_points, last_modified_ms
		 FROM `+s.table("gyms")+` ORDER BY gym_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query gyms: %w", err)
	}
	defer rows.Close()

	var out []Gym
	for rows.Next() {
		var g Gym
		var modified int64
		if err := rows.Scan(&g.ID, &g.Latitude, &g.Longitude, &g.Enabled, &g.Team,
			&g.GuardPokemonID, &g.Points, &modified); err != nil {
			return nil, err
		}
		g.LastModified = time.UnixMilli(modified)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneSightings(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("sightings")+` WHERE disappear_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sightings: %w", err)
	}
	return res.RowsAffected()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
