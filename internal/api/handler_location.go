package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type checkLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// PostCheckLocation handles POST /api/check-location. Missing coordinates
// are a validation failure; with no allowed locations configured the gate
// always passes.
func (h *Handler) PostCheckLocation(c *gin.Context) {
	var req checkLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed": h.gate.Allowed(*req.Latitude, *req.Longitude),
		"gated":   h.gate.Enabled(),
	})
}
