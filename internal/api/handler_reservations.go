package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type reservationResponse struct {
	Code  string    `json:"code"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GetActiveReservations handles GET /api/reservations (admin only): the
// currently active access codes with their reservation dates.
func (h *Handler) GetActiveReservations(c *gin.Context) {
	resp := []reservationResponse{}
	if h.reservations != nil {
		for _, r := range h.reservations.Active(time.Now()) {
			resp = append(resp, reservationResponse{Code: r.Code, Start: r.Start, End: r.End})
		}
	}
	c.JSON(http.StatusOK, gin.H{"reservations": resp})
}
