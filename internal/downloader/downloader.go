// Package downloader populates the tile store with every tile needed to
// render a bounding box offline, batch by batch, skipping tiles that are
// already cached and reporting incremental progress.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hikemate/trailpack/internal/store"
	"github.com/hikemate/trailpack/internal/tile"
	"github.com/hikemate/trailpack/pkg/logger"
	"github.com/hikemate/trailpack/pkg/metrics"
)

const (
	defaultBatchSize = 5
	defaultTileURL   = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultSource    = "osm"
	defaultUserAgent = "Trailpack/1.0 (https://github.com/hikemate/trailpack)"
)

// ErrAlreadyRunning is returned when DownloadArea is called while a
// previous invocation on the same instance has not finished.
var ErrAlreadyRunning = errors.New("a download is already running on this instance")

// Progress is a transient snapshot emitted to the progress callback.
// Downloaded counts tiles whose fetch attempt has resolved, whatever the
// outcome (fetched, cache hit, or skipped failure).
type Progress struct {
	Total       int    `json:"total"`
	Downloaded  int    `json:"downloaded"`
	CurrentTile string `json:"current_tile"`
}

// ProgressFunc receives progress snapshots during a download.
type ProgressFunc func(Progress)

// Request describes one area download.
type Request struct {
	Bounds     tile.BoundingBox
	ZoomLevels []int
	TrailID    string
	Polyline   []store.TrackPoint
	POIs       []store.POI
}

// Report aggregates the per-tile outcomes of a download. Failures are
// skipped, not fatal, so they only show up here and in the logs.
type Report struct {
	Total       int      `json:"total"`
	Fetched     int      `json:"fetched"`
	CacheHits   int      `json:"cache_hits"`
	Failed      int      `json:"failed"`
	FailedTiles []string `json:"failed_tiles,omitempty"`
}

// CompletionRecord is written to the store's metadata table after every
// finished download, for display and debugging only.
type CompletionRecord struct {
	TrailID     string           `json:"trail_id"`
	Bounds      tile.BoundingBox `json:"bounds"`
	ZoomLevels  []int            `json:"zoom_levels"`
	CompletedAt time.Time        `json:"completed_at"`
	Report      Report           `json:"report"`
}

type Option func(*AreaDownloader)

func WithBatchSize(n int) Option {
	return func(d *AreaDownloader) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(d *AreaDownloader) { d.client = c }
}

func WithTileURL(template string) Option {
	return func(d *AreaDownloader) { d.tileURL = template }
}

func WithSource(source string) Option {
	return func(d *AreaDownloader) { d.source = source }
}

func WithUserAgent(ua string) Option {
	return func(d *AreaDownloader) { d.userAgent = ua }
}

func WithProgress(fn ProgressFunc) Option {
	return func(d *AreaDownloader) { d.onProgress = fn }
}

func WithLogger(l logger.Logger) Option {
	return func(d *AreaDownloader) { d.logger = l }
}

// AreaDownloader downloads all tiles covering a bounding box across a
// set of zoom levels. One instance supports at most one concurrent
// DownloadArea call; the shared store behind it may be used by any
// number of downloaders and readers.
type AreaDownloader struct {
	store      store.Store
	client     *http.Client
	tileURL    string
	source     string
	userAgent  string
	batchSize  int
	onProgress ProgressFunc
	logger     logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func New(s store.Store, opts ...Option) *AreaDownloader {
	d := &AreaDownloader{
		store:     s,
		client:    &http.Client{Timeout: 30 * time.Second},
		tileURL:   defaultTileURL,
		source:    defaultSource,
		userAgent: defaultUserAgent,
		batchSize: defaultBatchSize,
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cancel requests cooperative cancellation of the in-flight download.
// It is a no-op when nothing is running. Tiles cached by completed
// batches are retained.
func (d *AreaDownloader) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// DownloadArea fetches every tile covering req.Bounds at req.ZoomLevels
// that is not already in the store, then persists the trail polyline,
// POIs and a completion record. Individual tile failures are skipped;
// cancellation surfaces as an error wrapping context.Canceled.
func (d *AreaDownloader) DownloadArea(ctx context.Context, req Request) (Report, error) {
	if err := req.Bounds.Validate(); err != nil {
		return Report{}, err
	}
	if len(req.ZoomLevels) == 0 {
		return Report{}, tile.ErrNoZoomLevels
	}

	ctx, err := d.begin(ctx)
	if err != nil {
		return Report{}, err
	}
	defer d.finish()

	start := time.Now()
	defer func() {
		metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	}()

	keys := tile.CoveringAll(req.Bounds, req.ZoomLevels, d.source)

	d.logger.Info("starting area download",
		"trail_id", req.TrailID,
		"zoom_levels", req.ZoomLevels,
		"total_tiles", len(keys),
	)

	run := &runState{total: len(keys), onProgress: d.onProgress}

	for batchStart := 0; batchStart < len(keys); batchStart += d.batchSize {
		if err := ctx.Err(); err != nil {
			report := run.report()
			d.logger.Info("download cancelled", "trail_id", req.TrailID, "downloaded", report.Fetched+report.CacheHits+report.Failed)
			return report, fmt.Errorf("download cancelled: %w", err)
		}

		batchEnd := batchStart + d.batchSize
		if batchEnd > len(keys) {
			batchEnd = len(keys)
		}

		var wg sync.WaitGroup
		for _, key := range keys[batchStart:batchEnd] {
			wg.Add(1)
			go func(k tile.Key) {
				defer wg.Done()
				d.processTile(ctx, k, run)
			}(key)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		report := run.report()
		d.logger.Info("download cancelled", "trail_id", req.TrailID, "downloaded", report.Fetched+report.CacheHits+report.Failed)
		return report, fmt.Errorf("download cancelled: %w", err)
	}

	if err := d.persistTrail(ctx, req, run.report()); err != nil {
		return run.report(), err
	}

	report := run.report()
	d.logger.Info("area download completed",
		"trail_id", req.TrailID,
		"fetched", report.Fetched,
		"cache_hits", report.CacheHits,
		"failed", report.Failed,
	)

	return report, nil
}

func (d *AreaDownloader) begin(ctx context.Context) (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	d.running = true
	d.cancel = cancel
	return ctx, nil
}

func (d *AreaDownloader) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel()
	d.running = false
	d.cancel = nil
}

// processTile resolves one tile: cache hit, fetched, or skipped failure.
// It never returns an error; outcomes land in the run state.
func (d *AreaDownloader) processTile(ctx context.Context, k tile.Key, run *runState) {
	run.emit(k.ID())

	if err := ctx.Err(); err != nil {
		return
	}

	_, ok, err := d.store.GetTile(ctx, k)
	if err != nil {
		// A failed read only costs a refetch.
		d.logger.Warn("store lookup failed, treating as miss", "tile", k.ID(), "error", err)
	}
	if ok {
		metrics.TileCacheHits.Inc()
		run.resolve(k.ID(), outcomeCacheHit)
		return
	}

	data, err := d.fetchTile(ctx, k)
	if err != nil {
		metrics.TileFetchFailures.Inc()
		d.logger.Warn("tile fetch failed, skipping", "tile", k.ID(), "error", err)
		run.resolve(k.ID(), outcomeFailed)
		return
	}
	metrics.TilesFetched.Inc()

	if err := d.store.SetTile(ctx, k, data); err != nil {
		// Not cached this time; a future download will retry it.
		metrics.TileFetchFailures.Inc()
		d.logger.Warn("tile store failed, skipping", "tile", k.ID(), "error", err)
		run.resolve(k.ID(), outcomeFailed)
		return
	}
	metrics.TilesStored.Inc()

	run.resolve(k.ID(), outcomeFetched)
}

func (d *AreaDownloader) fetchTile(ctx context.Context, k tile.Key) ([]byte, error) {
	url := d.buildURL(k)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Required by the OpenStreetMap tile usage policy.
	req.Header.Set("User-Agent", d.userAgent)

	fetchStart := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.Observe(time.Since(fetchStart).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	return data, nil
}

func (d *AreaDownloader) buildURL(k tile.Key) string {
	url := d.tileURL
	url = strings.Replace(url, "{z}", strconv.Itoa(k.Z), -1)
	url = strings.Replace(url, "{x}", strconv.Itoa(k.X), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(k.Y), -1)
	return url
}

// persistTrail writes the polyline, POIs and completion record. The
// writes are unconditional: a download with skipped tiles still records
// its trail metadata.
func (d *AreaDownloader) persistTrail(ctx context.Context, req Request, report Report) error {
	if req.Polyline != nil {
		err := d.store.SetTrail(ctx, store.TrailRecord{
			TrailID:    req.TrailID,
			Polyline:   req.Polyline,
			Bounds:     req.Bounds,
			ZoomLevels: req.ZoomLevels,
			StoredAt:   time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to persist trail data: %w", err)
		}
	}

	if req.POIs != nil {
		err := d.store.SetPOIs(ctx, store.POIRecord{
			TrailID: req.TrailID,
			Points:  req.POIs,
		})
		if err != nil {
			return fmt.Errorf("failed to persist pois: %w", err)
		}
	}

	record := CompletionRecord{
		TrailID:     req.TrailID,
		Bounds:      req.Bounds,
		ZoomLevels:  req.ZoomLevels,
		CompletedAt: time.Now(),
		Report:      report,
	}
	if err := d.store.SetMetadata(ctx, "download:"+req.TrailID, record); err != nil {
		return fmt.Errorf("failed to persist completion record: %w", err)
	}

	return nil
}

type tileOutcome int

const (
	outcomeFetched tileOutcome = iota
	outcomeCacheHit
	outcomeFailed
)

// runState aggregates per-tile outcomes and serializes progress
// emissions so Downloaded is monotonically non-decreasing even though
// tiles within a batch resolve concurrently.
type runState struct {
	mu         sync.Mutex
	total      int
	downloaded int
	fetched    int
	cacheHits  int
	failed     []string
	onProgress ProgressFunc
}

func (r *runState) emit(current string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify(current)
}

func (r *runState) resolve(current string, outcome tileOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.downloaded++
	switch outcome {
	case outcomeFetched:
		r.fetched++
	case outcomeCacheHit:
		r.cacheHits++
	case outcomeFailed:
		r.failed = append(r.failed, current)
	}
	r.notify(current)
}

func (r *runState) notify(current string) {
	if r.onProgress == nil {
		return
	}
	r.onProgress(Progress{
		Total:       r.total,
		Downloaded:  r.downloaded,
		CurrentTile: current,
	})
}

func (r *runState) report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Report{
		Total:       r.total,
		Fetched:     r.fetched,
		CacheHits:   r.cacheHits,
		Failed:      len(r.failed),
		FailedTiles: append([]string(nil), r.failed...),
	}
}
