// trailpack-fetch bulk-downloads the tiles covering a bounding box into
// a local SQLite pack, for seeding devices before a trip.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/hikemate/trailpack/internal/downloader"
	"github.com/hikemate/trailpack/internal/store"
	"github.com/hikemate/trailpack/internal/tile"
	"github.com/hikemate/trailpack/pkg/logger"
)

func main() {
	var (
		dbPath    = flag.String("db", "trailpack.db", "path of the SQLite tile pack")
		north     = flag.Float64("north", 0, "northern latitude of the bounding box")
		south     = flag.Float64("south", 0, "southern latitude of the bounding box")
		east      = flag.Float64("east", 0, "eastern longitude of the bounding box")
		west      = flag.Float64("west", 0, "western longitude of the bounding box")
		zooms     = flag.String("zooms", "10,11,12", "comma-separated zoom levels")
		trailID   = flag.String("trail", "", "trail identifier to record the download under")
		tileURL   = flag.String("tile-url", "https://tile.openstreetmap.org/{z}/{x}/{y}.png", "tile provider URL template")
		logLevel  = flag.String("log-level", "warn", "log level")
		batchSize = flag.Int("batch", 5, "tiles fetched concurrently per batch")
	)
	flag.Parse()

	if *trailID == "" {
		log.Fatal("missing required flag: -trail")
	}

	zoomLevels, err := parseZoomLevels(*zooms)
	if err != nil {
		log.Fatalf("invalid -zooms: %v", err)
	}

	l := logger.NewZapLogger(*logLevel)

	st, err := store.NewSQLiteStore(*dbPath, l)
	if err != nil {
		log.Fatalf("failed to open tile pack %s: %v", *dbPath, err)
	}
	defer st.Close()

	var bar *progressbar.ProgressBar
	d := downloader.New(st,
		downloader.WithTileURL(*tileURL),
		downloader.WithBatchSize(*batchSize),
		downloader.WithLogger(l),
		downloader.WithProgress(func(p downloader.Progress) {
			if bar == nil {
				bar = progressbar.Default(int64(p.Total), "downloading tiles")
			}
			_ = bar.Set(p.Downloaded)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := d.DownloadArea(ctx, downloader.Request{
		Bounds:     tile.BoundingBox{North: *north, South: *south, East: *east, West: *west},
		ZoomLevels: zoomLevels,
		TrailID:    *trailID,
	})
	if err != nil {
		log.Printf("download failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("done: %d tiles (%d fetched, %d already cached, %d failed)\n",
		report.Total, report.Fetched, report.CacheHits, report.Failed)
	for _, id := range report.FailedTiles {
		fmt.Printf("  failed: %s\n", id)
	}
}

func parseZoomLevels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	levels := make([]int, 0, len(parts))
	for _, part := range parts {
		z, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("zoom level %q is not an integer", part)
		}
		levels = append(levels, z)
	}
	return levels, nil
}
