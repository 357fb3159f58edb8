package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	logx "clairvoyance/pkg/logx"
)

// redisStore layout (prefix = namespace + "clairvoyance:"):
//   - <prefix>sighting:<spawnpoint>:<encounter>  JSON value
//   - <prefix>sightings                          ZSET member=key score=disappear ms
//   - <prefix>gyms                               HASH field=gym id value=JSON
type redisStore struct {
	rdb    *redis.Client
	log    logx.Logger
	prefix string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("storage.redis_addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisStore(rdb, cfg.Namespace, log), nil
}

func newRedisStore(rdb *redis.Client, namespace string, log logx.Logger) *redisStore {
	return &redisStore{rdb: rdb, log: log, prefix: namespace + "clairvoyance:"}
}

func (s *redisStore) sightingKey(v Sighting) string { return s.prefix + "sighting:" + v.key() }
func (s *redisStore) indexKey() string              { return s.prefix + "sightings" }
func (s *redisStore) gymsKey() string               { return s.prefix + "gyms" }

func (s *redisStore) Close() error { return s.rdb.Close() }

func (s *redisStore) UpsertSighting(ctx context.Context, v Sighting) (bool, error) {
	if err := v.validate(); err != nil {
		return false, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	key := s.sightingKey(v)
	inserted, err := s.rdb.SetNX(ctx, key, raw, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to insert sighting: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	if !inserted {
		pipe.Set(ctx, key, raw, 0)
	}
	pipe.ZAdd(ctx, s.indexKey(), &redis.Z{Score: float64(v.DisappearTime.UnixMilli()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return inserted, fmt.Errorf("failed to index sighting: %w", err)
	}
	return inserted, nil
}

func (s *redisStore) UpsertGym(ctx context.Context, g Gym) error {
	if g.ID == "" {
		return ErrInvalidRecord
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.gymsKey(), g.ID, raw).Err()
}

func (s *redisStore) ActiveSightings(ctx context.Context, now time.Time) ([]Sighting, error) {
	keys, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Sighting, 0, len(vals))
	for _, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v Sighting
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			s.log.Debug("skip malformed sighting", logx.Any("err", err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *redisStore) Gyms(ctx context.Context) ([]Gym, error) {
	m, err := s.rdb.HGetAll(ctx, s.gymsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query gyms: %w", err)
	}
	out := make([]Gym, 0, len(m))
	for _, raw := range m {
		var g Gym
		if err := json.Unmarshal([]byte(raw), &g); err != nil {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *redisStore) PruneSightings(ctx context.Context, before time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	keys, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune sightings: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByScore(ctx, s.indexKey(), "-inf", max)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}
