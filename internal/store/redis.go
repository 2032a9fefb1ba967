package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hikemate/trailpack/internal/tile"
)

// RedisStore backs the cache with a Redis instance. Unlike the SQLite
// backend it applies a TTL, which is Redis-native behavior: an expired
// tile is simply refetched on the next download.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour // default TTL
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) tileKey(k tile.Key) string {
	return fmt.Sprintf("tile:%s:%d:%d:%d", k.Source, k.Z, k.X, k.Y)
}

func (s *RedisStore) GetTile(ctx context.Context, k tile.Key) (CachedTile, bool, error) {
	data, err := s.client.Get(ctx, s.tileKey(k)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return CachedTile{}, false, nil
		}
		return CachedTile{}, false, fmt.Errorf("redis get error: %w", err)
	}

	var t CachedTile
	if err := json.Unmarshal(data, &t); err != nil {
		return CachedTile{}, false, fmt.Errorf("decode tile: %w", err)
	}

	return t, true, nil
}

func (s *RedisStore) SetTile(ctx context.Context, k tile.Key, data []byte) error {
	t := CachedTile{Key: k, Data: data, StoredAt: time.Now()}
	return s.setJSON(ctx, s.tileKey(k), t)
}

func (s *RedisStore) GetTrail(ctx context.Context, trailID string) (TrailRecord, bool, error) {
	var rec TrailRecord
	ok, err := s.getJSON(ctx, "trail:"+trailID, &rec)
	return rec, ok, err
}

func (s *RedisStore) SetTrail(ctx context.Context, rec TrailRecord) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	return s.setJSON(ctx, "trail:"+rec.TrailID, rec)
}

func (s *RedisStore) GetPOIs(ctx context.Context, trailID string) (POIRecord, bool, error) {
	var rec POIRecord
	ok, err := s.getJSON(ctx, "pois:"+trailID, &rec)
	return rec, ok, err
}

func (s *RedisStore) SetPOIs(ctx context.Context, rec POIRecord) error {
	return s.setJSON(ctx, "pois:"+rec.TrailID, rec)
}

func (s *RedisStore) GetMetadata(ctx context.Context, key string, dest any) (bool, error) {
	return s.getJSON(ctx, "meta:"+key, dest)
}

func (s *RedisStore) SetMetadata(ctx context.Context, key string, value any) error {
	return s.setJSON(ctx, "meta:"+key, value)
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis get error: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
