package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hikemate/trailpack/internal/tile"
)

// MemoryStore keeps everything in process memory. Used in tests and in
// dev mode; contents do not survive a restart.
type MemoryStore struct {
	tiles  sync.Map // tile.Key -> CachedTile
	trails sync.Map // string -> TrailRecord
	pois   sync.Map // string -> POIRecord
	meta   sync.Map // string -> []byte (JSON)
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GetTile(_ context.Context, k tile.Key) (CachedTile, bool, error) {
	v, ok := s.tiles.Load(k)
	if !ok {
		return CachedTile{}, false, nil
	}
	return v.(CachedTile), true, nil
}

func (s *MemoryStore) SetTile(_ context.Context, k tile.Key, data []byte) error {
	s.tiles.Store(k, CachedTile{Key: k, Data: data, StoredAt: time.Now()})
	return nil
}

func (s *MemoryStore) GetTrail(_ context.Context, trailID string) (TrailRecord, bool, error) {
	v, ok := s.trails.Load(trailID)
	if !ok {
		return TrailRecord{}, false, nil
	}
	return v.(TrailRecord), true, nil
}

func (s *MemoryStore) SetTrail(_ context.Context, rec TrailRecord) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	s.trails.Store(rec.TrailID, rec)
	return nil
}

func (s *MemoryStore) GetPOIs(_ context.Context, trailID string) (POIRecord, bool, error) {
	v, ok := s.pois.Load(trailID)
	if !ok {
		return POIRecord{}, false, nil
	}
	return v.(POIRecord), true, nil
}

func (s *MemoryStore) SetPOIs(_ context.Context, rec POIRecord) error {
	s.pois.Store(rec.TrailID, rec)
	return nil
}

func (s *MemoryStore) GetMetadata(_ context.Context, key string, dest any) (bool, error) {
	v, ok := s.meta.Load(key)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(v.([]byte), dest)
}

func (s *MemoryStore) SetMetadata(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.meta.Store(key, data)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
