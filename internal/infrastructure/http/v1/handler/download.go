package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hikemate/trailpack/internal/downloader"
	"github.com/hikemate/trailpack/internal/infrastructure/http/v1/dto"
	"github.com/hikemate/trailpack/internal/store"
	"github.com/hikemate/trailpack/internal/tile"
	"github.com/hikemate/trailpack/pkg/logger"
)

func (h *Handler) StartDownload(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	var body dto.DownloadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		l.Warn("invalid download request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	bounds := tile.BoundingBox{
		North: body.North,
		South: body.South,
		East:  body.East,
		West:  body.West,
	}
	if err := bounds.Validate(); err != nil {
		l.Warn("invalid bounding box", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	req := downloader.Request{
		Bounds:     bounds,
		ZoomLevels: body.ZoomLevels,
		TrailID:    body.TrailID,
	}
	if body.Polyline != nil {
		req.Polyline = make([]store.TrackPoint, 0, len(body.Polyline))
		for _, p := range body.Polyline {
			req.Polyline = append(req.Polyline, p.ToStore())
		}
	}
	if body.POIs != nil {
		req.POIs = make([]store.POI, 0, len(body.POIs))
		for _, p := range body.POIs {
			req.POIs = append(req.POIs, p.ToStore())
		}
	}

	jobID := h.downloads.Start(req)
	l.Info("download job started", "job_id", jobID, "trail_id", body.TrailID)

	h.RespondWithJSON(c, http.StatusAccepted, "download started", dto.DownloadStarted{JobID: jobID})
}

func (h *Handler) DownloadStatus(c *gin.Context) {
	snap, exists := h.downloads.Get(c.Param("id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown download job",
		})
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "got download status", snap)
}

func (h *Handler) CancelDownload(c *gin.Context) {
	if !h.downloads.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown download job",
		})
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "cancellation requested", nil)
}
