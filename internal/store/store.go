// Package store persists map tiles and per-trail metadata for offline
// rendering. All backends are safe for concurrent use: every write is a
// full-key upsert and every read is a point lookup.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hikemate/trailpack/internal/tile"
)

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("store is closed")

// CachedTile is one stored raster tile. Created on first successful
// download of a key, never mutated afterwards.
type CachedTile struct {
	Key      tile.Key
	Data     []byte
	StoredAt time.Time
}

// TrackPoint is one vertex of a trail polyline.
type TrackPoint struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// POI is a named point of interest along a trail.
type POI struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name"`
	Type string  `json:"type"`
}

// TrailRecord holds everything needed to render a trail offline except
// the tiles themselves. One record per trail, last write wins.
type TrailRecord struct {
	TrailID    string           `json:"trail_id"`
	Polyline   []TrackPoint     `json:"polyline"`
	Bounds     tile.BoundingBox `json:"bounds"`
	ZoomLevels []int            `json:"zoom_levels"`
	StoredAt   time.Time        `json:"stored_at"`
}

// POIRecord holds the points of interest of one trail, last write wins.
type POIRecord struct {
	TrailID string `json:"trail_id"`
	Points  []POI  `json:"points"`
}

// Store is the persistence contract shared by all backends.
//
// GetTile returns ok=false for absent keys; an error indicates a backend
// fault and callers on the download path degrade it to a miss.
// GetMetadata unmarshals the stored JSON value into dest.
type Store interface {
	GetTile(ctx context.Context, key tile.Key) (CachedTile, bool, error)
	SetTile(ctx context.Context, key tile.Key, data []byte) error

	GetTrail(ctx context.Context, trailID string) (TrailRecord, bool, error)
	SetTrail(ctx context.Context, rec TrailRecord) error

	GetPOIs(ctx context.Context, trailID string) (POIRecord, bool, error)
	SetPOIs(ctx context.Context, rec POIRecord) error

	GetMetadata(ctx context.Context, key string, dest any) (bool, error)
	SetMetadata(ctx context.Context, key string, value any) error

	Close() error
}
