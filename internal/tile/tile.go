// Package tile implements slippy-map tile addressing: Web Mercator
// projection of geographic coordinates into the z/x/y grid and
// enumeration of the tiles covering a bounding box.
package tile

import (
	"errors"
	"fmt"
	"math"
)

// Key uniquely identifies one raster tile of a provider.
type Key struct {
	Z      int
	X      int
	Y      int
	Source string
}

// ID formats the key as "z/x/y".
func (k Key) ID() string {
	return fmt.Sprintf("%d/%d/%d", k.Z, k.X, k.Y)
}

// BoundingBox is a rectangular geographic region in degrees.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

var (
	ErrInvalidBounds = errors.New("invalid bounding box")
	ErrNoZoomLevels  = errors.New("no zoom levels requested")
)

// Validate rejects degenerate, inverted and antimeridian-crossing boxes.
// Boxes with west > east are not supported.
func (b BoundingBox) Validate() error {
	if b.North <= b.South {
		return fmt.Errorf("%w: north (%v) must be greater than south (%v)", ErrInvalidBounds, b.North, b.South)
	}
	if b.West > b.East {
		return fmt.Errorf("%w: west (%v) must not exceed east (%v)", ErrInvalidBounds, b.West, b.East)
	}
	if b.North > 90 || b.South < -90 {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidBounds)
	}
	if b.East > 180 || b.West < -180 {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidBounds)
	}
	return nil
}

// LonToX projects a longitude onto the tile column at the given zoom.
func LonToX(lon float64, zoom int) int {
	n := math.Pow(2, float64(zoom))
	x := int(math.Floor((lon + 180.0) / 360.0 * n))
	return clamp(x, int(n)-1)
}

// LatToY projects a latitude onto the tile row at the given zoom.
func LatToY(lat float64, zoom int) int {
	n := math.Pow(2, float64(zoom))
	rad := lat * math.Pi / 180.0
	y := int(math.Floor((1.0 - math.Log(math.Tan(rad)+1.0/math.Cos(rad))/math.Pi) / 2.0 * n))
	return clamp(y, int(n)-1)
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Covering enumerates every tile of one zoom level intersecting the box,
// from the northwest corner tile to the southeast corner tile inclusive,
// column-major (x outer, y inner).
func Covering(b BoundingBox, zoom int, source string) []Key {
	minX := LonToX(b.West, zoom)
	maxX := LonToX(b.East, zoom)
	minY := LatToY(b.North, zoom)
	maxY := LatToY(b.South, zoom)

	keys := make([]Key, 0, (maxX-minX+1)*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			keys = append(keys, Key{Z: zoom, X: x, Y: y, Source: source})
		}
	}
	return keys
}

// CoveringAll enumerates the tiles for every requested zoom level, in the
// order the levels were given, producing one flat ordered slice.
func CoveringAll(b BoundingBox, zoomLevels []int, source string) []Key {
	var keys []Key
	for _, zoom := range zoomLevels {
		keys = append(keys, Covering(b, zoom, source)...)
	}
	return keys
}
