// Package dto defines the request and response bodies of the v1 API.
package dto

import (
	"github.com/hikemate/trailpack/internal/store"
)

// DownloadRequest starts an area download for one trail.
type DownloadRequest struct {
	TrailID    string       `json:"trail_id" binding:"required"`
	North      float64      `json:"north" binding:"gte=-90,lte=90"`
	South      float64      `json:"south" binding:"gte=-90,lte=90"`
	East       float64      `json:"east" binding:"gte=-180,lte=180"`
	West       float64      `json:"west" binding:"gte=-180,lte=180"`
	ZoomLevels []int        `json:"zoom_levels" binding:"required,min=1,dive,gte=0,lte=20"`
	Polyline   []TrackPoint `json:"polyline,omitempty"`
	POIs       []POI        `json:"pois,omitempty"`
}

type TrackPoint struct {
	Lat       float64  `json:"lat" binding:"gte=-90,lte=90"`
	Lng       float64  `json:"lng" binding:"gte=-180,lte=180"`
	Elevation *float64 `json:"elevation,omitempty"`
}

type POI struct {
	Lat  float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng  float64 `json:"lng" binding:"gte=-180,lte=180"`
	Name string  `json:"name" binding:"required"`
	Type string  `json:"type"`
}

func (p TrackPoint) ToStore() store.TrackPoint {
	return store.TrackPoint{Lat: p.Lat, Lng: p.Lng, Elevation: p.Elevation}
}

func (p POI) ToStore() store.POI {
	return store.POI{Lat: p.Lat, Lng: p.Lng, Name: p.Name, Type: p.Type}
}

// DownloadStarted is returned by POST /download.
type DownloadStarted struct {
	JobID string `json:"job_id"`
}
