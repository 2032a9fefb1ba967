package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Trail(c *gin.Context) {
	trailID := c.Param("id")

	rec, exists, err := h.offlineMap.GetTrail(c.Request.Context(), trailID)
	if err != nil {
		h.RespondWithInternalServerError(c)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "trail not cached",
		})
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "got trail", rec)
}

func (h *Handler) TrailPOIs(c *gin.Context) {
	trailID := c.Param("id")

	rec, exists, err := h.offlineMap.GetPOIs(c.Request.Context(), trailID)
	if err != nil {
		h.RespondWithInternalServerError(c)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no pois cached for trail",
		})
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "got pois", rec)
}
