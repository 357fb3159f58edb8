package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "clairvoyance/pkg/logx"
)

// fileStore keeps everything in memory and persists to two files:
//   - <prefix>.snapshot.json (compacted state)
//   - <prefix>.journal.jsonl (append-only journal since the last snapshot)
//
// The journal is compacted into the snapshot on prune and every
// compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	sightings map[string]Sighting
	gyms      map[string]Gym

	writes int
}

const compactEvery = 1000

type journalRecord struct {
	Sighting *Sighting `json:"sighting,omitempty"`
	Gym      *Gym      `json:"gym,omitempty"`
	// PruneBefore is unix milli; records a prune so replay stays consistent.
	PruneBefore int64 `json:"prune_before,omitempty"`
}

type fileSnapshot struct {
	Sightings []Sighting `json:"sightings"`
	Gyms      []Gym      `json:"gyms"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, cfg.Namespace+base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		sightings:    map[string]Sighting{},
		gyms:         map[string]Gym{},
	}
	journalPath := prefix + ".journal.jsonl"

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage snapshot unreadable; starting empty", logx.Any("err", err))
	}
	if err := s.replay(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage journal replay failed", logx.Any("err", err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) UpsertSighting(ctx context.Context, v Sighting) (bool, error) {
	_ = ctx
	if err := v.validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return false, ErrClosed
	}
	_, exists := s.sightings[v.key()]
	s.sightings[v.key()] = v
	if err := s.appendLocked(journalRecord{Sighting: &v}); err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *fileStore) UpsertGym(ctx context.Context, g Gym) error {
	_ = ctx
	if g.ID == "" {
		return ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	s.gyms[g.ID] = g
	return s.appendLocked(journalRecord{Gym: &g})
}

func (s *fileStore) ActiveSightings(ctx context.Context, now time.Time) ([]Sighting, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]Sighting, 0, len(s.sightings))
	for _, v := range s.sightings {
		if v.DisappearTime.After(now) {
			out = append(out, v)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DisappearTime.Before(out[j].DisappearTime) })
	return out, nil
}

func (s *fileStore) Gyms(ctx context.Context) ([]Gym, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]Gym, 0, len(s.gyms))
	for _, g := range s.gyms {
		out = append(out, g)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) PruneSightings(ctx context.Context, before time.Time) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	n := pruneSightings(s.sightings, before.UnixMilli())
	if err := s.compactLocked(); err != nil {
		s.log.Debug("storage compact failed", logx.Any("err", err))
		return n, s.appendLocked(journalRecord{PruneBefore: before.UnixMilli()})
	}
	return n, nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("storage compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := fileSnapshot{
		Sightings: make([]Sighting, 0, len(s.sightings)),
		Gyms:      make([]Gym, 0, len(s.gyms)),
	}
	for _, v := range s.sightings {
		snap.Sightings = append(snap.Sightings, v)
	}
	for _, g := range s.gyms {
		snap.Gyms = append(snap.Gyms, g)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, v := range snap.Sightings {
		s.sightings[v.key()] = v
	}
	for _, g := range snap.Gyms {
		s.gyms[g.ID] = g
	}
	return nil
}

func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch {
		case r.Sighting != nil:
			s.sightings[r.Sighting.key()] = *r.Sighting
		case r.Gym != nil:
			s.gyms[r.Gym.ID] = *r.Gym
		case r.PruneBefore > 0:
			pruneSightings(s.sightings, r.PruneBefore)
		}
	}
	return sc.Err()
}

func pruneSightings(m map[string]Sighting, beforeMs int64) int64 {
	var n int64
	for k, v := range m {
		if v.DisappearTime.UnixMilli() < beforeMs {
			delete(m, k)
			n++
		}
	}
	return n
}
