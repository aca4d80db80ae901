package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/anujtewari17/iaqualink-spa-control/internal/aqualink"
	"github.com/anujtewari17/iaqualink-spa-control/internal/reservation"
)

// Auto-shutdown thresholds, measured from the most recent spa activation.
const (
	DefaultNotifyAfter   = 150 * time.Minute
	DefaultShutdownAfter = 3 * time.Hour
)

// Controller is the slice of the vendor client the coordinator needs.
type Controller interface {
	Status(ctx context.Context) (*aqualink.Snapshot, error)
	Toggle(ctx context.Context, device string) (map[string]any, error)
}

// Notifier delivers best-effort notifications.
type Notifier interface {
	Dispatch(message string)
}

// Coordinator is the spa session state machine. While the spa is active it
// keeps one notify timer and one hard shutdown timer armed; every path that
// turns the spa off converges on the same idempotent cleanup.
type Coordinator struct {
	controller    Controller
	notifier      Notifier
	usage         *UsageLogger
	reservations  *reservation.Store
	notifyAfter   time.Duration
	shutdownAfter time.Duration
	pacing        time.Duration
	now           func() time.Time

	mu            sync.Mutex
	gen           uint64
	notifyTimer   *time.Timer
	shutdownTimer *time.Timer
	active        bool
}

// Option tweaks coordinator construction.
type Option func(*Coordinator)

// WithThresholds overrides the notify/shutdown delays, for tests.
func WithThresholds(notifyAfter, shutdownAfter time.Duration) Option {
	return func(c *Coordinator) {
		c.notifyAfter = notifyAfter
		c.shutdownAfter = shutdownAfter
	}
}

// WithPacing overrides the inter-toggle delay in the shutdown sweep.
func WithPacing(d time.Duration) Option {
	return func(c *Coordinator) {
		c.pacing = d
	}
}

// NewCoordinator creates the session/shutdown coordinator. The reservation
// store may be nil when no calendar feed is configured; sessions are then
// logged under the unknown-guest sentinel.
func NewCoordinator(controller Controller, notifier Notifier, usage *UsageLogger, reservations *reservation.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		controller:    controller,
		notifier:      notifier,
		usage:         usage,
		reservations:  reservations,
		notifyAfter:   DefaultNotifyAfter,
		shutdownAfter: DefaultShutdownAfter,
		pacing:        time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe drives the state machine from a post-toggle (or polled) status
// snapshot: spa-mode on re-arms both timers from now and opens a session if
// none is open; spa-mode off cancels the timers and closes the session.
// Both directions are idempotent.
func (c *Coordinator) Observe(ctx context.Context, snap *aqualink.Snapshot) {
	if snap == nil {
		return
	}
	if snap.SpaMode {
		c.spaOn()
	} else {
		c.spaOff(ctx)
	}
}

// spaOn arms (or re-arms) the notify and shutdown timers. Re-arming always
// replaces the previous handles, never stacks them: shutdown is 3 hours
// from the most recent activation, not cumulative.
func (c *Coordinator) spaOn() {
	c.mu.Lock()

	c.stopTimersLocked()
	c.gen++
	gen := c.gen
	c.notifyTimer = time.AfterFunc(c.notifyAfter, func() { c.onNotify(gen) })
	c.shutdownTimer = time.AfterFunc(c.shutdownAfter, func() { c.onShutdown(gen) })

	wasActive := c.active
	c.active = true
	c.mu.Unlock()

	if !wasActive {
		log.Println("Spa activated; auto-shutdown timers armed")
	} else {
		log.Println("Spa still active; auto-shutdown timers re-armed")
	}

	c.usage.StartSession(c.guest())
}

// spaOff cancels both timers unconditionally and closes the open usage
// session if any. Safe to call from any off path any number of times.
func (c *Coordinator) spaOff(ctx context.Context) {
	c.mu.Lock()
	c.stopTimersLocked()
	c.gen++
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	if wasActive {
		log.Println("Spa deactivated; auto-shutdown timers canceled")
	}

	c.usage.EndSession(ctx)
}

func (c *Coordinator) stopTimersLocked() {
	if c.notifyTimer != nil {
		c.notifyTimer.Stop()
		c.notifyTimer = nil
	}
	if c.shutdownTimer != nil {
		c.shutdownTimer.Stop()
		c.shutdownTimer = nil
	}
}

// onNotify fires once per arm. A stale generation means the timer was
// re-armed or canceled after this callback was already scheduled.
func (c *Coordinator) onNotify(gen uint64) {
	c.mu.Lock()
	stale := gen != c.gen || !c.active
	c.mu.Unlock()
	if stale {
		return
	}

	log.Println("Spa runtime notification threshold reached")
	c.notifier.Dispatch("The spa has been running for 2.5 hours and will shut off automatically at the 3 hour mark.")
}

// onShutdown fires at most once per arm. On failure it logs and does not
// reschedule; the nightly sweep remains as the safety net.
func (c *Coordinator) onShutdown(gen uint64) {
	c.mu.Lock()
	stale := gen != c.gen || !c.active
	c.mu.Unlock()
	if stale {
		return
	}

	log.Println("Spa runtime limit reached, shutting down equipment")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := c.TurnOffAllEquipment(ctx); err != nil {
		log.Printf("Auto-shutdown failed: %v", err)
	}
}

// TurnOffAllEquipment reads the current snapshot and toggles off every
// device that is on, sequentially with a pacing delay, continuing past
// individual failures so one stuck device cannot block the rest. The
// sweep always ends with the spa off, so it converges the state machine
// through the normal off transition, which also closes a session left
// open by an out-of-band off (vendor mobile app).
func (c *Coordinator) TurnOffAllEquipment(ctx context.Context) error {
	snap, err := c.controller.Status(ctx)
	if err != nil {
		return fmt.Errorf("shutdown sweep aborted: %w", err)
	}

	toggled := 0
	for _, device := range aqualink.Devices {
		if !snap.On(device) {
			continue
		}
		if toggled > 0 {
			if err := sleepCtx(ctx, c.pacing); err != nil {
				return err
			}
		}
		if _, err := c.controller.Toggle(ctx, device); err != nil {
			log.Printf("Failed to toggle %s off during shutdown sweep: %v", device, err)
		} else {
			log.Printf("Toggled %s off", device)
		}
		toggled++
	}

	c.spaOff(ctx)
	return nil
}

// NightlyShutdown is the cron entry point: the same sweep, run
// unconditionally regardless of current state.
func (c *Coordinator) NightlyShutdown() {
	log.Println("Nightly shutdown triggered")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := c.TurnOffAllEquipment(ctx); err != nil {
		log.Printf("Nightly shutdown failed: %v", err)
		return
	}
	log.Println("Nightly shutdown completed")
}

// Armed reports whether the notify and shutdown timers are outstanding.
func (c *Coordinator) Armed() (notify, shutdown bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifyTimer != nil, c.shutdownTimer != nil
}

// Active reports whether the coordinator considers the spa active.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// guest resolves the identity recorded on session start: the active
// reservation's id (or code), else the unknown-guest sentinel.
func (c *Coordinator) guest() string {
	if c.reservations == nil {
		return UnknownGuest
	}
	r := c.reservations.Current(c.now())
	if r == nil {
		return UnknownGuest
	}
	if r.ID != "" {
		return r.ID
	}
	if r.Code != "" {
		return r.Code
	}
	return UnknownGuest
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
