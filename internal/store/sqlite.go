package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/hikemate/trailpack/internal/tile"
	"github.com/hikemate/trailpack/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore is the durable on-device store. Entries survive process
// restarts and are never evicted.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string, l logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: l,
	}

	err = s.runMigrations()
	if err != nil {
		return nil, err
	}

	l.Info("sqlite store initialized", "path", path)

	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(s.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) GetTile(ctx context.Context, k tile.Key) (CachedTile, bool, error) {
	s.logger.Debug("sqlite tile get", "z", k.Z, "x", k.X, "y", k.Y, "source", k.Source)

	query := `SELECT data, stored_at
	FROM tiles
	WHERE z = ? AND x = ? AND y = ? AND source = ?`

	var (
		data     []byte
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, k.Z, k.X, k.Y, k.Source).Scan(&data, &storedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return CachedTile{}, false, nil
		}
		s.logger.Error("sqlite tile get failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return CachedTile{}, false, err
	}

	return CachedTile{Key: k, Data: data, StoredAt: time.Unix(storedAt, 0)}, true, nil
}

func (s *SQLiteStore) SetTile(ctx context.Context, k tile.Key, data []byte) error {
	s.logger.Debug("sqlite tile set", "z", k.Z, "x", k.X, "y", k.Y, "source", k.Source, "size", len(data))

	query := `INSERT INTO tiles (z, x, y, source, data, stored_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(z, x, y, source) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`

	_, err := s.db.ExecContext(ctx, query, k.Z, k.X, k.Y, k.Source, data, time.Now().Unix())
	if err != nil {
		s.logger.Error("sqlite tile set failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return err
	}

	return nil
}

func (s *SQLiteStore) GetTrail(ctx context.Context, trailID string) (TrailRecord, bool, error) {
	query := `SELECT polyline, north, south, east, west, zoom_levels, stored_at
	FROM trails
	WHERE trail_id = ?`

	var (
		polylineJSON string
		zoomsJSON    string
		storedAt     int64
		rec          TrailRecord
	)
	err := s.db.QueryRowContext(ctx, query, trailID).Scan(
		&polylineJSON,
		&rec.Bounds.North, &rec.Bounds.South, &rec.Bounds.East, &rec.Bounds.West,
		&zoomsJSON, &storedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return TrailRecord{}, false, nil
		}
		s.logger.Error("sqlite trail get failed", "trail_id", trailID, "error", err)
		return TrailRecord{}, false, err
	}

	rec.TrailID = trailID
	rec.StoredAt = time.Unix(storedAt, 0)
	if err := json.Unmarshal([]byte(polylineJSON), &rec.Polyline); err != nil {
		return TrailRecord{}, false, fmt.Errorf("decode polyline: %w", err)
	}
	if err := json.Unmarshal([]byte(zoomsJSON), &rec.ZoomLevels); err != nil {
		return TrailRecord{}, false, fmt.Errorf("decode zoom levels: %w", err)
	}

	return rec, true, nil
}

func (s *SQLiteStore) SetTrail(ctx context.Context, rec TrailRecord) error {
	s.logger.Debug("sqlite trail set", "trail_id", rec.TrailID, "points", len(rec.Polyline))

	polylineJSON, err := json.Marshal(rec.Polyline)
	if err != nil {
		return fmt.Errorf("encode polyline: %w", err)
	}
	zoomsJSON, err := json.Marshal(rec.ZoomLevels)
	if err != nil {
		return fmt.Errorf("encode zoom levels: %w", err)
	}

	storedAt := rec.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	query := `INSERT INTO trails (trail_id, polyline, north, south, east, west, zoom_levels, stored_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(trail_id) DO UPDATE SET
		polyline = excluded.polyline,
		north = excluded.north,
		south = excluded.south,
		east = excluded.east,
		west = excluded.west,
		zoom_levels = excluded.zoom_levels,
		stored_at = excluded.stored_at`

	_, err = s.db.ExecContext(ctx, query,
		rec.TrailID, string(polylineJSON),
		rec.Bounds.North, rec.Bounds.South, rec.Bounds.East, rec.Bounds.West,
		string(zoomsJSON), storedAt.Unix(),
	)
	if err != nil {
		s.logger.Error("sqlite trail set failed", "trail_id", rec.TrailID, "error", err)
		return err
	}

	return nil
}

func (s *SQLiteStore) GetPOIs(ctx context.Context, trailID string) (POIRecord, bool, error) {
	query := `SELECT points FROM pois WHERE trail_id = ?`

	var pointsJSON string
	err := s.db.QueryRowContext(ctx, query, trailID).Scan(&pointsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return POIRecord{}, false, nil
		}
		s.logger.Error("sqlite pois get failed", "trail_id", trailID, "error", err)
		return POIRecord{}, false, err
	}

	rec := POIRecord{TrailID: trailID}
	if err := json.Unmarshal([]byte(pointsJSON), &rec.Points); err != nil {
		return POIRecord{}, false, fmt.Errorf("decode pois: %w", err)
	}

	return rec, true, nil
}

func (s *SQLiteStore) SetPOIs(ctx context.Context, rec POIRecord) error {
	s.logger.Debug("sqlite pois set", "trail_id", rec.TrailID, "points", len(rec.Points))

	pointsJSON, err := json.Marshal(rec.Points)
	if err != nil {
		return fmt.Errorf("encode pois: %w", err)
	}

	query := `INSERT INTO pois (trail_id, points)
	VALUES (?, ?)
	ON CONFLICT(trail_id) DO UPDATE SET points = excluded.points`

	_, err = s.db.ExecContext(ctx, query, rec.TrailID, string(pointsJSON))
	if err != nil {
		s.logger.Error("sqlite pois set failed", "trail_id", rec.TrailID, "error", err)
		return err
	}

	return nil
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, key string, dest any) (bool, error) {
	query := `SELECT value FROM metadata WHERE key = ?`

	var valueJSON string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&valueJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		s.logger.Error("sqlite metadata get failed", "key", key, "error", err)
		return false, err
	}

	if err := json.Unmarshal([]byte(valueJSON), dest); err != nil {
		return false, fmt.Errorf("decode metadata %q: %w", key, err)
	}

	return true, nil
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, key string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode metadata %q: %w", key, err)
	}

	query := `INSERT INTO metadata (key, value)
	VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	_, err = s.db.ExecContext(ctx, query, key, string(valueJSON))
	if err != nil {
		s.logger.Error("sqlite metadata set failed", "key", key, "error", err)
		return err
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
