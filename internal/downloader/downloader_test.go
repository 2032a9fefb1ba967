package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hikemate/trailpack/internal/store"
	"github.com/hikemate/trailpack/internal/tile"
)

// tileServer is a fake tile provider that counts requests and tracks how
// many are in flight at once.
type tileServer struct {
	*httptest.Server

	requests      atomic.Int64
	inFlight      atomic.Int64
	maxInFlight   atomic.Int64
	failPath      string
	failRequested atomic.Bool
}

func newTileServer(t *testing.T) *tileServer {
	t.Helper()

	ts := &tileServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)

		cur := ts.inFlight.Add(1)
		defer ts.inFlight.Add(-1)
		for {
			max := ts.maxInFlight.Load()
			if cur <= max || ts.maxInFlight.CompareAndSwap(max, cur) {
				break
			}
		}

		// Give concurrent batch members a chance to overlap.
		time.Sleep(5 * time.Millisecond)

		if ts.failPath != "" && r.URL.Path == ts.failPath {
			ts.failRequested.Store(true)
			http.Error(w, "tile unavailable", http.StatusInternalServerError)
			return
		}

		w.Write([]byte("tile:" + r.URL.Path))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tileServer) urlTemplate() string {
	return ts.URL + "/{z}/{x}/{y}.png"
}

func newTestDownloader(ts *tileServer, s store.Store, opts ...Option) *AreaDownloader {
	base := []Option{WithTileURL(ts.urlTemplate())}
	return New(s, append(base, opts...)...)
}

var testBounds = tile.BoundingBox{North: 1, South: -1, East: 1, West: -1}

func TestDownloadAreaIdempotent(t *testing.T) {
	ts := newTileServer(t)
	s := store.NewMemoryStore()
	d := newTestDownloader(ts, s)

	req := Request{Bounds: testBounds, ZoomLevels: []int{1, 2}, TrailID: "trail-1"}

	first, err := d.DownloadArea(context.Background(), req)
	if err != nil {
		t.Fatalf("first download failed: %v", err)
	}
	firstRequests := ts.requests.Load()
	if firstRequests != int64(first.Total) {
		t.Errorf("first run issued %d requests, want %d", firstRequests, first.Total)
	}
	if first.Fetched != first.Total || first.CacheHits != 0 {
		t.Errorf("first run report %+v, want all fetched", first)
	}

	second, err := d.DownloadArea(context.Background(), req)
	if err != nil {
		t.Fatalf("second download failed: %v", err)
	}
	if got := ts.requests.Load(); got != firstRequests {
		t.Errorf("second run issued %d extra requests, want 0", got-firstRequests)
	}
	if second.Total != first.Total {
		t.Errorf("totals differ across runs: %d vs %d", first.Total, second.Total)
	}
	if second.CacheHits != second.Total {
		t.Errorf("second run report %+v, want all cache hits", second)
	}
}

func TestDownloadAreaBatchConcurrency(t *testing.T) {
	ts := newTileServer(t)
	s := store.NewMemoryStore()
	d := newTestDownloader(ts, s)

	// 4 + 4 + 4 tiles for this box, i.e. ceil(12/5) = 3 batches.
	req := Request{Bounds: testBounds, ZoomLevels: []int{1, 2, 3}, TrailID: "trail-1"}

	report, err := d.DownloadArea(context.Background(), req)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if report.Total != 12 {
		t.Fatalf("total = %d, want 12", report.Total)
	}
	if got := ts.maxInFlight.Load(); got > 5 {
		t.Errorf("max in-flight fetches = %d, want at most 5", got)
	}
	if got := ts.requests.Load(); got != 12 {
		t.Errorf("issued %d requests, want 12", got)
	}
}

func TestDownloadAreaProgressMonotonic(t *testing.T) {
	ts := newTileServer(t)
	s := store.NewMemoryStore()

	var snapshots []Progress
	d := newTestDownloader(ts, s, WithProgress(func(p Progress) {
		snapshots = append(snapshots, p)
	}))

	req := Request{Bounds: testBounds, ZoomLevels: []int{1, 2}, TrailID: "trail-1"}
	report, err := d.DownloadArea(context.Background(), req)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}

	if len(snapshots) != 2*report.Total {
		t.Errorf("got %d progress callbacks, want %d (before and after each tile)", len(snapshots), 2*report.Total)
	}

	prev := 0
	for i, p := range snapshots {
		if p.Total != report.Total {
			t.Errorf("snapshot %d: total = %d, want %d", i, p.Total, report.Total)
		}
		if p.Downloaded < prev {
			t.Fatalf("snapshot %d: downloaded decreased from %d to %d", i, prev, p.Downloaded)
		}
		prev = p.Downloaded
	}
	if last := snapshots[len(snapshots)-1]; last.Downloaded != last.Total {
		t.Errorf("final snapshot %+v, want downloaded == total", last)
	}
}

func TestDownloadAreaCancellation(t *testing.T) {
	ts := newTileServer(t)
	s := store.NewMemoryStore()

	var cancelled atomic.Bool
	var d *AreaDownloader
	d = newTestDownloader(ts, s, WithProgress(func(p Progress) {
		// Cancel once the first batch has fully resolved.
		if p.Downloaded == 5 && cancelled.CompareAndSwap(false, true) {
			d.Cancel()
		}
	}))

	req := Request{Bounds: testBounds, ZoomLevels: []int{1, 2, 3}, TrailID: "trail-1"}
	_, err := d.DownloadArea(context.Background(), req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want one wrapping context.Canceled", err)
	}

	if got := ts.requests.Load(); got != 5 {
		t.Errorf("issued %d requests, want exactly the first batch of 5", got)
	}

	// Tiles from the completed batch stay cached.
	keys := tile.CoveringAll(req.Bounds, req.ZoomLevels, "osm")
	cached := 0
	for _, k := range keys[:5] {
		if _, ok, _ := s.GetTile(context.Background(), k); ok {
			cached++
		}
	}
	if cached != 5 {
		t.Errorf("%d of the first batch's tiles cached, want 5", cached)
	}

	// The trail metadata writes are skipped on cancellation.
	if _, ok, _ := s.GetTrail(context.Background(), "trail-1"); ok {
		t.Error("trail record written despite cancellation")
	}

	// A cancelled download is safe to resume: a fresh call fetches only
	// what is missing.
	resumed, err := d.DownloadArea(context.Background(), req)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.CacheHits != 5 || resumed.Fetched != resumed.Total-5 {
		t.Errorf("resume report %+v, want 5 cache hits", resumed)
	}
}

func TestDownloadAreaPartialFailure(t *testing.T) {
	ts := newTileServer(t)
	s := store.NewMemoryStore()
	d := newTestDownloader(ts, s)

	keys := tile.CoveringAll(testBounds, []int{1, 2}, "osm")
	failing := keys[2]
	ts.failPath = fmt.Sprintf("/%d/%d/%d.png", failing.Z, failing.X, failing.Y)

	req := Request{
		Bounds:     testBounds,
		ZoomLevels: []int{1, 2},
		TrailID:    "trail-1",
		Polyline:   []store.TrackPoint{{Lat: 0.5, Lng: 0.5}},
		POIs:       []store.POI{{Lat: 0.5, Lng: 0.5, Name: "summit", Type: "peak"}},
	}

	report, err := d.DownloadArea(context.Background(), req)
	if err != nil {
		t.Fatalf("download failed despite skip-and-continue policy: %v", err)
	}
	if !ts.failRequested.Load() {
		t.Fatal("failing tile was never requested")
	}

	if report.Failed != 1 || report.Fetched != report.Total-1 {
		t.Errorf("report %+v, want 1 failed tile", report)
	}
	if len(report.FailedTiles) != 1 || report.FailedTiles[0] != failing.ID() {
		t.Errorf("failed tiles %v, want [%s]", report.FailedTiles, failing.ID())
	}

	cached := 0
	for _, k := range keys {
		if _, ok, _ := s.GetTile(context.Background(), k); ok {
			cached++
		}
	}
	if cached != len(keys)-1 {
		t.Errorf("%d tiles cached, want %d", cached, len(keys)-1)
	}

	// Metadata writes are not gated on per-tile success.
	if _, ok, _ := s.GetTrail(context.Background(), "trail-1"); !ok {
		t.Error("trail record missing after partial failure")
	}
	if _, ok, _ := s.GetPOIs(context.Background(), "trail-1"); !ok {
		t.Error("poi record missing after partial failure")
	}
}

func TestDownloadAreaEndToEnd(t *testing.T) {
	ts := newTileServer(t)
	s := store.NewMemoryStore()
	d := newTestDownloader(ts, s)

	elev := 250.0
	req := Request{
		Bounds:     tile.BoundingBox{North: 37.8, South: 37.7, East: -122.4, West: -122.5},
		ZoomLevels: []int{10, 11},
		TrailID:    "trail-42",
		Polyline: []store.TrackPoint{
			{Lat: 37.75, Lng: -122.45, Elevation: &elev},
			{Lat: 37.76, Lng: -122.44},
			{Lat: 37.77, Lng: -122.43},
		},
		POIs: []store.POI{
			{Lat: 37.75, Lng: -122.45, Name: "trailhead", Type: "access"},
			{Lat: 37.77, Lng: -122.43, Name: "vista point", Type: "viewpoint"},
		},
	}

	report, err := d.DownloadArea(context.Background(), req)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}

	trail, ok, err := s.GetTrail(context.Background(), "trail-42")
	if err != nil || !ok {
		t.Fatalf("trail record missing: ok=%v err=%v", ok, err)
	}
	if len(trail.Polyline) != 3 {
		t.Errorf("polyline has %d points, want 3", len(trail.Polyline))
	}
	if trail.Bounds != req.Bounds {
		t.Errorf("stored bounds %+v, want %+v", trail.Bounds, req.Bounds)
	}
	if trail.Polyline[0].Elevation == nil || *trail.Polyline[0].Elevation != elev {
		t.Error("elevation lost on first track point")
	}

	pois, ok, err := s.GetPOIs(context.Background(), "trail-42")
	if err != nil || !ok {
		t.Fatalf("poi record missing: ok=%v err=%v", ok, err)
	}
	if len(pois.Points) != 2 {
		t.Errorf("got %d pois, want 2", len(pois.Points))
	}

	keys := tile.CoveringAll(req.Bounds, req.ZoomLevels, "osm")
	if report.Total != len(keys) {
		t.Errorf("report total %d, want %d", report.Total, len(keys))
	}
	for _, k := range keys {
		if _, ok, _ := s.GetTile(context.Background(), k); !ok {
			t.Errorf("tile %s missing from cache", k.ID())
		}
	}

	var completion CompletionRecord
	ok, err = s.GetMetadata(context.Background(), "download:trail-42", &completion)
	if err != nil || !ok {
		t.Fatalf("completion record missing: ok=%v err=%v", ok, err)
	}
	if completion.Report.Fetched != report.Fetched {
		t.Errorf("completion record report %+v, want %+v", completion.Report, report)
	}
}

func TestDownloadAreaRejectsBadRequests(t *testing.T) {
	ts := newTileServer(t)
	d := newTestDownloader(ts, store.NewMemoryStore())

	_, err := d.DownloadArea(context.Background(), Request{
		Bounds:     tile.BoundingBox{North: -1, South: 1, East: 1, West: -1},
		ZoomLevels: []int{1},
	})
	if !errors.Is(err, tile.ErrInvalidBounds) {
		t.Errorf("inverted box: got %v, want ErrInvalidBounds", err)
	}

	_, err = d.DownloadArea(context.Background(), Request{Bounds: testBounds})
	if !errors.Is(err, tile.ErrNoZoomLevels) {
		t.Errorf("empty zoom list: got %v, want ErrNoZoomLevels", err)
	}

	if got := ts.requests.Load(); got != 0 {
		t.Errorf("rejected requests issued %d fetches, want 0", got)
	}
}

func TestDownloadAreaSingleRunPerInstance(t *testing.T) {
	s := store.NewMemoryStore()

	release := make(chan struct{})
	started := make(chan struct{}, 16)
	blocking := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Write([]byte("tile"))
	}))
	defer blocking.Close()

	d := New(s, WithTileURL(blocking.URL+"/{z}/{x}/{y}.png"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := d.DownloadArea(context.Background(), Request{
			Bounds: testBounds, ZoomLevels: []int{1}, TrailID: "trail-1",
		})
		if err != nil {
			t.Errorf("first download failed: %v", err)
		}
	}()

	<-started
	_, err := d.DownloadArea(context.Background(), Request{
		Bounds: testBounds, ZoomLevels: []int{1}, TrailID: "trail-1",
	})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("concurrent call: got %v, want ErrAlreadyRunning", err)
	}

	close(release)
	wg.Wait()
}
