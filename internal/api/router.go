package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/anujtewari17/iaqualink-spa-control/internal/mw"
)

// RouterConfig carries the middleware tunables into NewRouter.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, validator mw.KeyValidator, rc RouterConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(rc.RateLimitPerSec), rc.RateLimitBurst)

	// Reservation listings change on the feed-refresh cadence; a short
	// post-auth cache keeps repeated admin polls off the store. Device
	// status is never cached.
	cacheStore := cache.New(time.Minute, 10*time.Minute)
	caching := mw.Cache(cacheStore, 30*time.Second)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		gated := api.Group("")
		gated.Use(mw.AccessKey(validator))
		{
			gated.GET("/status", h.GetStatus)
			gated.POST("/toggle/:device", h.PostToggle)
			gated.POST("/set-temperature", h.PostSetTemperature)
			gated.POST("/shutdown", h.PostShutdown)
			gated.POST("/check-location", h.PostCheckLocation)

			gated.PUT("/subscriptions", h.PutSubscription)
			gated.DELETE("/subscriptions", h.DeleteSubscription)
			gated.GET("/vapid_public_key", h.GetVAPIDPublicKey)
		}

		admin := api.Group("")
		admin.Use(mw.AdminOnly(validator))
		{
			admin.GET("/reservations", caching, h.GetActiveReservations)
		}
	}

	return r
}
