package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_fetched_total",
		Help: "Total number of tiles fetched from the upstream provider",
	})

	TileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits_total",
		Help: "Total number of tiles served from the local store during downloads",
	})

	TileFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetch_failures_total",
		Help: "Total number of tile fetches that failed and were skipped",
	})

	TilesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_stored_total",
		Help: "Total number of tile store operations",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "area_download_duration_seconds",
		Help:    "Duration of whole-area downloads in seconds",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_operation_duration_seconds",
		Help:    "Duration of store operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})
)
