package usecase

import (
	"context"

	"github.com/hikemate/trailpack/internal/store"
	"github.com/hikemate/trailpack/internal/tile"
	"github.com/hikemate/trailpack/pkg/logger"
)

// OfflineMapUseCase is the read path for offline rendering: cached
// tiles, trail polylines and POIs. Store faults on tile lookups are
// degraded to misses so a renderer never sees an error, only absence.
type OfflineMapUseCase struct {
	store  store.Store
	logger logger.Logger
}

func NewOfflineMapUseCase(s store.Store, l logger.Logger) *OfflineMapUseCase {
	return &OfflineMapUseCase{
		store:  s,
		logger: l,
	}
}

func (uc *OfflineMapUseCase) GetCachedTile(ctx context.Context, source string, z, x, y int) ([]byte, bool) {
	uc.logger.Debug("tile lookup", "source", source, "z", z, "x", x, "y", y)

	key := tile.Key{Z: z, X: x, Y: y, Source: source}
	t, ok, err := uc.store.GetTile(ctx, key)
	if err != nil {
		uc.logger.Error("tile lookup failed", "source", source, "z", z, "x", x, "y", y, "error", err)
		return nil, false
	}
	return t.Data, ok
}

func (uc *OfflineMapUseCase) GetTrail(ctx context.Context, trailID string) (store.TrailRecord, bool, error) {
	uc.logger.Debug("trail lookup", "trail_id", trailID)

	rec, ok, err := uc.store.GetTrail(ctx, trailID)
	if err != nil {
		uc.logger.Error("trail lookup failed", "trail_id", trailID, "error", err)
		return store.TrailRecord{}, false, err
	}
	return rec, ok, nil
}

func (uc *OfflineMapUseCase) GetPOIs(ctx context.Context, trailID string) (store.POIRecord, bool, error) {
	uc.logger.Debug("poi lookup", "trail_id", trailID)

	rec, ok, err := uc.store.GetPOIs(ctx, trailID)
	if err != nil {
		uc.logger.Error("poi lookup failed", "trail_id", trailID, "error", err)
		return store.POIRecord{}, false, err
	}
	return rec, ok, nil
}
