package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anujtewari17/iaqualink-spa-control/internal/aqualink"
	"github.com/anujtewari17/iaqualink-spa-control/internal/reservation"
)

type fakeController struct {
	mu      sync.Mutex
	snap    *aqualink.Snapshot
	toggled []string
}

func (f *fakeController) Status(context.Context) (*aqualink.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := *f.snap
	return &snap, nil
}

func (f *fakeController) Toggle(_ context.Context, device string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, device)
	// Mirror the vendor: toggling flips the device off in the next read.
	switch device {
	case aqualink.DeviceSpaMode:
		f.snap.SpaMode = !f.snap.SpaMode
	case aqualink.DeviceSpaHeater:
		f.snap.SpaHeater = !f.snap.SpaHeater
	case aqualink.DeviceJetPump:
		f.snap.JetPump = !f.snap.JetPump
	case aqualink.DeviceFilterPump:
		f.snap.FilterPump = !f.snap.FilterPump
	}
	return map[string]any{"device": device}, nil
}

func (f *fakeController) toggles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.toggled))
	copy(out, f.toggled)
	return out
}

type fakeNotifier struct {
	count atomic.Int32
}

func (f *fakeNotifier) Dispatch(string) { f.count.Add(1) }

func newTestCoordinator(ctrl *fakeController, n *fakeNotifier, opts ...Option) (*Coordinator, *UsageLogger) {
	usage := NewUsageLogger(&fakeStore{})
	opts = append([]Option{WithPacing(time.Millisecond)}, opts...)
	return NewCoordinator(ctrl, n, usage, nil, opts...), usage
}

func TestObserve_SpaOnArmsTimersAndOpensSession(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{SpaMode: true}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{})

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})

	assert.True(t, c.Active())
	notify, shutdown := c.Armed()
	assert.True(t, notify)
	assert.True(t, shutdown)

	guest, _, ok := usage.Open()
	require.True(t, ok)
	assert.Equal(t, UnknownGuest, guest)
}

func TestObserve_SpaOffCancelsTimersAndClosesSession(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{})

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})
	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: false})

	assert.False(t, c.Active())
	notify, shutdown := c.Armed()
	assert.False(t, notify)
	assert.False(t, shutdown)

	_, _, ok := usage.Open()
	assert.False(t, ok)
	assert.Len(t, usage.Sessions(), 1)
}

func TestObserve_OffIsIdempotent(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{})

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})
	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: false})
	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: false})

	assert.Len(t, usage.Sessions(), 1, "repeated off observations close at most one session")
}

func TestReArm_SingleShutdownTimedFromSecondArm(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{SpaMode: true}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{},
		WithThresholds(20*time.Millisecond, 60*time.Millisecond))

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})
	// Re-arm halfway through the first shutdown window. The first timers
	// must be replaced, not stacked.
	time.Sleep(30 * time.Millisecond)
	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})

	// 40ms after the re-arm: the first arm's 60ms shutdown would already
	// have fired by now, the second arm's has not.
	time.Sleep(40 * time.Millisecond)
	assert.True(t, c.Active(), "shutdown must count from the most recent activation")
	assert.Empty(t, ctrl.toggles())

	// Let the second arm's shutdown fire.
	require.Eventually(t, func() bool { return !c.Active() }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{aqualink.DeviceSpaMode}, ctrl.toggles(), "exactly one shutdown sweep")
	assert.Len(t, usage.Sessions(), 1)
}

func TestNotifyFiresBeforeShutdown(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{SpaMode: true}}
	n := &fakeNotifier{}
	c, _ := newTestCoordinator(ctrl, n,
		WithThresholds(10*time.Millisecond, 50*time.Millisecond))

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})

	require.Eventually(t, func() bool { return n.count.Load() == 1 }, time.Second, 2*time.Millisecond)
	assert.True(t, c.Active(), "notification does not shut the spa down")

	require.Eventually(t, func() bool { return !c.Active() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), n.count.Load())
}

func TestNotifySuppressedAfterManualOff(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{}}
	n := &fakeNotifier{}
	c, _ := newTestCoordinator(ctrl, n,
		WithThresholds(20*time.Millisecond, time.Hour))

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})
	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: false})

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), n.count.Load(), "canceled notify timer must not fire")
}

func TestTurnOffAllEquipment_TogglesOnlyActiveDevices(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{
		SpaMode:    true,
		JetPump:    true,
		FilterPump: false,
		SpaHeater:  false,
	}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{})

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})
	require.NoError(t, c.TurnOffAllEquipment(context.Background()))

	assert.Equal(t, []string{aqualink.DeviceSpaMode, aqualink.DeviceJetPump}, ctrl.toggles())
	assert.False(t, c.Active())
	assert.Len(t, usage.Sessions(), 1, "shutdown sweep closes the open session")
}

func TestTurnOffAllEquipment_SpaModeOnlyIssuesOneToggle(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{SpaMode: true}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{})

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})
	require.NoError(t, c.TurnOffAllEquipment(context.Background()))

	assert.Equal(t, []string{aqualink.DeviceSpaMode}, ctrl.toggles())
	assert.Len(t, usage.Sessions(), 1)
}

func TestTurnOffAllEquipment_ExternalOffStillClosesSession(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{SpaMode: true}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{})

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})

	// The spa is turned off through the vendor mobile app; the next sweep
	// observes it off with nothing left to toggle.
	ctrl.mu.Lock()
	ctrl.snap.SpaMode = false
	ctrl.mu.Unlock()

	require.NoError(t, c.TurnOffAllEquipment(context.Background()))

	assert.Empty(t, ctrl.toggles())
	assert.False(t, c.Active(), "sweep ending with the spa off must leave the machine idle")
	_, _, ok := usage.Open()
	assert.False(t, ok, "session must be closed once the spa is observed off")
	assert.Len(t, usage.Sessions(), 1)
}

func TestTurnOffAllEquipment_AllOffIsNoOp(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{}}
	c, usage := newTestCoordinator(ctrl, &fakeNotifier{})

	require.NoError(t, c.TurnOffAllEquipment(context.Background()))

	assert.Empty(t, ctrl.toggles())
	assert.Empty(t, usage.Sessions())
}

func TestObserve_AttributesSessionToActiveReservation(t *testing.T) {
	reservations := reservation.NewStore("", time.Hour, 15, 13, time.UTC)
	now := time.Now().UTC()
	reservations.Replace([]reservation.Reservation{{
		ID:    "evt-42",
		Start: now.AddDate(0, 0, -1),
		End:   now.AddDate(0, 0, 1),
		Code:  "12341234",
	}})

	ctrl := &fakeController{snap: &aqualink.Snapshot{SpaMode: true}}
	usage := NewUsageLogger(&fakeStore{})
	c := NewCoordinator(ctrl, &fakeNotifier{}, usage, reservations, WithPacing(time.Millisecond))

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: true})

	guest, _, ok := usage.Open()
	require.True(t, ok)
	assert.Equal(t, "evt-42", guest, "session carries the active reservation's id")

	c.Observe(context.Background(), &aqualink.Snapshot{SpaMode: false})
	records := usage.Sessions()
	require.Len(t, records, 1)
	assert.Equal(t, "evt-42", records[0].Guest)
}

func TestObserve_NilSnapshotIgnored(t *testing.T) {
	ctrl := &fakeController{snap: &aqualink.Snapshot{}}
	c, _ := newTestCoordinator(ctrl, &fakeNotifier{})

	c.Observe(context.Background(), nil)
	assert.False(t, c.Active())
}
