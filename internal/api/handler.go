package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/anujtewari17/iaqualink-spa-control/internal/aqualink"
	"github.com/anujtewari17/iaqualink-spa-control/internal/geo"
	"github.com/anujtewari17/iaqualink-spa-control/internal/reservation"
	"github.com/anujtewari17/iaqualink-spa-control/internal/store"
)

// SpaController is the slice of the vendor client the handlers need.
type SpaController interface {
	Status(ctx context.Context) (*aqualink.Snapshot, error)
	Toggle(ctx context.Context, device string) (map[string]any, error)
	SetSpaTemperature(ctx context.Context, temp int) (map[string]any, error)
}

// SessionCoordinator receives status observations and runs the shutdown
// sweep on demand.
type SessionCoordinator interface {
	Observe(ctx context.Context, snap *aqualink.Snapshot)
	TurnOffAllEquipment(ctx context.Context) error
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	spa          SpaController
	coordinator  SessionCoordinator
	reservations *reservation.Store
	gate         *geo.Gate
	webpush      *webpush.Options
	settleDelay  time.Duration
}

// NewHandler creates a new API handler. The reservation store may be nil
// when no calendar feed is configured.
func NewHandler(s store.Store, spa SpaController, coordinator SessionCoordinator, reservations *reservation.Store, gate *geo.Gate, webpushOptions *webpush.Options, settleDelay time.Duration) *Handler {
	return &Handler{
		store:        s,
		spa:          spa,
		coordinator:  coordinator,
		reservations: reservations,
		gate:         gate,
		webpush:      webpushOptions,
		settleDelay:  settleDelay,
	}
}
