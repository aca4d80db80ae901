package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anujtewari17/iaqualink-spa-control/internal/aqualink"
)

// GetStatus handles GET /api/status: one fresh vendor read, normalized.
func (h *Handler) GetStatus(c *gin.Context) {
	snap, err := h.spa.Status(c.Request.Context())
	if err != nil {
		abortVendorError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PostToggle handles POST /api/toggle/:device. The toggle is one vendor
// round trip; after a bounded settle delay the status is read back and fed
// to the coordinator, which arms or cancels the auto-shutdown timers.
func (h *Handler) PostToggle(c *gin.Context) {
	device := c.Param("device")
	if !aqualink.IsValidDevice(device) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":        "Invalid device",
			"validDevices": aqualink.Devices,
		})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.spa.Toggle(ctx, device); err != nil {
		abortVendorError(c, err)
		return
	}

	// The vendor applies commands with a propagation delay; wait before
	// reading back.
	h.settle(c)

	snap, err := h.spa.Status(ctx)
	if err != nil {
		abortVendorError(c, err)
		return
	}
	h.coordinator.Observe(ctx, snap)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"device":  device,
		"message": fmt.Sprintf("%s toggled successfully", device),
		"status":  snap,
	})
}

type setTemperatureRequest struct {
	Temperature *int `json:"temperature" binding:"required"`
}

// PostSetTemperature handles POST /api/set-temperature. The range gate runs
// before any vendor call.
func (h *Handler) PostSetTemperature(c *gin.Context) {
	var req setTemperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Temperature == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "temperature is required"})
		return
	}

	temp := *req.Temperature
	if temp < 80 || temp > 104 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid temperature",
			"message": "Temperature must be between 80°F and 104°F",
		})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.spa.SetSpaTemperature(ctx, temp); err != nil {
		abortVendorError(c, err)
		return
	}

	h.settle(c)

	snap, err := h.spa.Status(ctx)
	if err != nil {
		abortVendorError(c, err)
		return
	}
	h.coordinator.Observe(ctx, snap)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"temperature": temp,
		"message":     fmt.Sprintf("Spa temperature set to %d°F", temp),
		"status":      snap,
	})
}

// PostShutdown handles POST /api/shutdown: the full equipment sweep.
func (h *Handler) PostShutdown(c *gin.Context) {
	if err := h.coordinator.TurnOffAllEquipment(c.Request.Context()); err != nil {
		abortVendorError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All equipment turned off",
	})
}

func (h *Handler) settle(c *gin.Context) {
	if h.settleDelay <= 0 {
		return
	}
	t := time.NewTimer(h.settleDelay)
	defer t.Stop()
	select {
	case <-c.Request.Context().Done():
	case <-t.C:
	}
}

// abortVendorError maps the vendor error taxonomy onto HTTP statuses:
// authentication failures and transient vendor failures are distinct.
func abortVendorError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, aqualink.ErrUnknownDevice):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, aqualink.ErrAuthFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Vendor authentication failed"})
	case errors.Is(err, aqualink.ErrStatusUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to retrieve spa status"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
