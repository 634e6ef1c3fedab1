package mount

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/astroid_interface/astroid"
)

type fakeDriver struct {
	mu   sync.Mutex
	sent []astroid.Command
	err  error
}

func (f *fakeDriver) Send(c astroid.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, c)
	return nil
}

func (f *fakeDriver) Sent() []astroid.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]astroid.Command(nil), f.sent...)
}

type harness struct {
	*Mount
	driver *fakeDriver
	clock  time.Time
	states []State
	status astroid.Status
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		driver: &fakeDriver{},
		clock:  time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC),
	}
	h.Mount = New(DefaultConfig(), Site{Latitude: 42.36, Longitude: -71.09}, func(s State) {
		h.states = append(h.states, s)
	})
	h.Mount.now = func() time.Time { return h.clock }
	h.Attach(h.driver)
	return h
}

// frame delivers a status frame 200ms after the previous one.
func (h *harness) frame(stepRA, stepDE int32) {
	h.clock = h.clock.Add(200 * time.Millisecond)
	h.status.DeviceClock += 200
	h.status.StepRA = stepRA
	h.status.StepDE = stepDE
	h.HandleStatus(h.status)
}

func TestSyncBeforeTelemetry(t *testing.T) {
	h := newHarness(t)
	err := h.Handle(SetCoordinates{RA: 1, DE: 2, Mode: Sync})
	require.ErrorIs(t, err, ErrNoTelemetry)
}

func TestInitialPosition(t *testing.T) {
	h := newHarness(t)
	h.frame(1000, 2000)
	s := h.State()
	require.InDelta(t, 0, s.RA, 1e-9)
	require.InDelta(t, 0, s.DE, 1e-9)
	require.Equal(t, East, s.PierSide)
	require.Equal(t, Idle, s.Mode)
	require.Empty(t, h.driver.Sent())
}

func TestSync(t *testing.T) {
	h := newHarness(t)
	h.frame(1000, 2000)
	require.NoError(t, h.Handle(SetCoordinates{RA: 5.5, DE: 30, Mode: Sync}))
	s := h.State()
	require.InDelta(t, 5.5, s.RA, 1e-9)
	require.InDelta(t, 30, s.DE, 1e-9)
	require.Equal(t, Sync, s.CoordSetMode)
	require.Equal(t, Idle, s.Mode)
	require.Empty(t, h.driver.Sent(), "sync must not move the mount")

	// The sky turns while the motors stand still.
	h.clock = h.clock.Add(time.Hour)
	h.tick()
	require.InDelta(t, 6.5+1./365.2422, h.State().RA, 1e-3)
	require.InDelta(t, 30, h.State().DE, 1e-9)
}

func TestSyncNormalizesInput(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 25, DE: 200, Mode: Sync}))
	s := h.State()
	require.InDelta(t, 1, s.RA, 1e-9)
	require.InDelta(t, -160, s.DE, 1e-9)
}

func TestGotoEdgeTriggered(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 5, DE: 0, Mode: Sync}))
	require.NoError(t, h.Handle(SetCoordinates{RA: 5, DE: 20, Mode: Slew}))
	require.Equal(t, GotoActive, h.Mode())
	require.Empty(t, h.driver.Sent(), "goto steps only run on telemetry")

	h.clock = h.clock.Add(-200 * time.Millisecond) // keep the sidereal time still
	h.frame(0, 0)
	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 600)
	want := []astroid.Command{{SpeedDE: 240}}
	if diff := cmp.Diff(h.driver.Sent(), want); diff != "" {
		t.Errorf("sent: got(-)/want(+):\n%s", diff)
	}

	// 60 steps per degree; 19.9 degrees is inside the slow zone.
	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 1194)
	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 1198)
	want = append(want, astroid.Command{SpeedDE: 24})
	if diff := cmp.Diff(h.driver.Sent(), want); diff != "" {
		t.Errorf("sent: got(-)/want(+):\n%s", diff)
	}

	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 1200)
	want = append(want, astroid.Command{})
	if diff := cmp.Diff(h.driver.Sent(), want); diff != "" {
		t.Errorf("sent: got(-)/want(+):\n%s", diff)
	}
	require.Equal(t, Idle, h.Mode())
	require.False(t, h.State().Goto.Active)
	require.InDelta(t, 20, h.State().DE, 1e-9)

	// Further telemetry does not restart the goto.
	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 1100)
	require.Len(t, h.driver.Sent(), 3)
}

func TestAbort(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 12, DE: 45, Mode: Track}))
	h.frame(0, 0)
	require.NotEmpty(t, h.driver.Sent())

	require.NoError(t, h.Handle(Abort{}))
	sent := h.driver.Sent()
	require.Equal(t, astroid.Command{}, sent[len(sent)-1])
	require.Equal(t, Idle, h.Mode())

	// A frame arriving after the abort must not resume the goto.
	h.frame(0, 0)
	require.Len(t, h.driver.Sent(), len(sent))

	// Abort always sends, even when already stopped.
	require.NoError(t, h.Handle(Abort{}))
	require.Len(t, h.driver.Sent(), len(sent)+1)
}

func TestManualMotion(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 12, DE: 45, Mode: Slew}))

	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisRA, Direction: Positive}))
	require.Equal(t, ManualMotion, h.Mode())
	require.False(t, h.State().Goto.Active, "manual motion cancels the goto")

	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisDE, Direction: Negative}))
	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisDE, Direction: Positive}))
	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisRA, Direction: None}))
	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisDE, Direction: None}))
	require.Equal(t, Idle, h.Mode())

	// West on an inverted RA axis runs the motor backwards.
	want := []astroid.Command{
		{SpeedRA: -240},
		{SpeedRA: -240, SpeedDE: -240},
		{SpeedRA: -240, SpeedDE: 240},
		{SpeedDE: 240},
		{},
	}
	if diff := cmp.Diff(h.driver.Sent(), want); diff != "" {
		t.Errorf("sent: got(-)/want(+):\n%s", diff)
	}

	// Telemetry does not interfere with manual motion.
	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisDE, Direction: Positive}))
	h.frame(0, 100)
	require.Len(t, h.driver.Sent(), len(want)+1)
}

func TestManualMotionWestSide(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetPierSide{Side: West}))
	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisDE, Direction: Positive}))
	require.Equal(t, []astroid.Command{{SpeedDE: -240}}, h.driver.Sent())
}

func TestMotionRate(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)

	// No manual motion: nothing to resend.
	require.NoError(t, h.Handle(SetMotionRate{ArcminPerSec: 10 * SiderealRate}))
	require.Empty(t, h.driver.Sent())
	require.InDelta(t, 10*SiderealRate, h.State().MotionRate, 1e-6)

	require.NoError(t, h.Handle(SetManualMotion{Axis: AxisDE, Direction: Positive}))
	require.NoError(t, h.Handle(SetMotionRate{ArcminPerSec: 20 * SiderealRate}))
	sent := h.driver.Sent()
	require.Len(t, sent, 2)
	require.InDelta(t, 10, sent[0].SpeedDE, 1e-4)
	require.InDelta(t, 20, sent[1].SpeedDE, 1e-4)
}

func TestPierSideFlip(t *testing.T) {
	h := newHarness(t)
	h.frame(500, 700)
	require.NoError(t, h.Handle(SetCoordinates{RA: 3, DE: 50, Mode: Sync}))
	h.frame(800, 900)
	before := h.State()

	require.NoError(t, h.Handle(SetPierSide{Side: West}))
	after := h.State()
	require.Equal(t, West, after.PierSide)
	require.InDelta(t, math.Mod(before.RA+12, 24), after.RA, 1e-9)
	require.InDelta(t, 180-before.DE, after.DE, 1e-9)
	require.InDelta(t, before.Az, after.Az, 1e-6)
	require.InDelta(t, before.Alt, after.Alt, 1e-6)
	require.Empty(t, h.driver.Sent(), "a flip is not a motion")

	// Setting the same side again changes nothing.
	require.NoError(t, h.Handle(SetPierSide{Side: West}))
	require.Equal(t, after.Calibration, h.State().Calibration)
}

func TestGeographicLocation(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 3, DE: 50, Mode: Sync}))
	require.NoError(t, h.Handle(SetGeographicLatitude{Degrees: -33.9}))
	require.NoError(t, h.Handle(SetGeographicElevation{Meters: 12}))
	require.NoError(t, h.Handle(SetGeographicLongitude{Degrees: -71.09 + 15}))
	s := h.State()
	require.Equal(t, Site{Latitude: -33.9, Longitude: -71.09 + 15, Elevation: 12}, s.Site)
	// The calibration is anchored in hour angle, so moving the site east by
	// one hour moves the reported RA with it.
	require.InDelta(t, 4, s.RA, 1e-9)
}

func TestStopFrameRetried(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 5, DE: 0, Mode: Sync}))
	require.NoError(t, h.Handle(SetCoordinates{RA: 5, DE: 20, Mode: Slew}))
	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 600)
	require.Equal(t, []astroid.Command{{SpeedDE: 240}}, h.driver.Sent())

	// The stop frame is lost; the goto stays active and the mount keeps
	// reporting the speed the controller last accepted.
	h.driver.err = errors.New("broken pipe")
	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 1200)
	require.Equal(t, GotoActive, h.Mode())
	require.Equal(t, astroid.Command{SpeedDE: 240}, h.State().Command)
	require.Equal(t, LinkAlert, h.State().Link)

	h.driver.err = nil
	h.clock = h.clock.Add(-200 * time.Millisecond)
	h.frame(0, 1200)
	require.Equal(t, []astroid.Command{{SpeedDE: 240}, {}}, h.driver.Sent())
	require.Equal(t, Idle, h.Mode())
}

func TestStaleStateDropped(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 12, DE: 45, Mode: Slew}))
	stale := h.State()
	require.Equal(t, GotoActive, stale.Mode)
	require.NoError(t, h.Handle(Abort{}))

	n := len(h.states)
	h.publish(stale)
	require.Len(t, h.states, n)
	last := h.states[n-1]
	require.Equal(t, Idle, last.Mode)
	require.Greater(t, last.Seq, stale.Seq)
}

func TestClockDiscontinuity(t *testing.T) {
	h := newHarness(t)
	h.frame(100, 100)
	require.NoError(t, h.Handle(SetCoordinates{RA: 3, DE: 50, Mode: Sync}))
	h.frame(100, 100)
	require.InDelta(t, 50, h.State().DE, 1e-9)

	// The controller rebooted.
	h.status.DeviceClock = 0
	h.clock = h.clock.Add(time.Second)
	h.status.StepRA, h.status.StepDE = 0, 0
	h.HandleStatus(h.status)
	s := h.State()
	require.InDelta(t, 0, s.RA, 1e-9)
	require.InDelta(t, 0, s.DE, 1e-9)
}

func TestClockWraps(t *testing.T) {
	h := newHarness(t)
	h.status.DeviceClock = math.MaxUint32 - 250
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 3, DE: 50, Mode: Sync}))
	h.frame(0, 0)
	require.Less(t, h.status.DeviceClock, uint32(1000))
	require.InDelta(t, 50, h.State().DE, 1e-9, "a wrapping counter is not a reboot")
}

func TestLinkHealth(t *testing.T) {
	h := newHarness(t)
	h.tick()
	require.Equal(t, LinkAlert, h.State().Link)

	h.frame(0, 0)
	h.tick()
	require.Equal(t, LinkOK, h.State().Link)

	h.clock = h.clock.Add(1500 * time.Millisecond)
	h.tick()
	require.Equal(t, LinkAlert, h.State().Link)

	h.frame(0, 0)
	h.tick()
	require.Equal(t, LinkOK, h.State().Link)

	// A failed send flags the link until the next frame.
	h.driver.err = errors.New("broken pipe")
	require.NoError(t, h.Handle(Abort{}))
	require.Equal(t, LinkAlert, h.State().Link)
	h.frame(0, 0)
	require.Equal(t, LinkOK, h.State().Link)
}

func TestNoDriver(t *testing.T) {
	m := New(DefaultConfig(), Site{}, nil)
	require.NoError(t, m.Handle(Abort{}))
	require.Equal(t, LinkAlert, m.State().Link)
}

func TestInvalidRequests(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	for _, req := range []Request{
		nil,
		SetCoordinates{RA: 1, DE: 1},
		SetManualMotion{Axis: Axis(5), Direction: Positive},
		SetManualMotion{Axis: AxisRA, Direction: Direction(9)},
		SetPierSide{Side: PierSide(3)},
	} {
		require.Error(t, h.Handle(req), "%#v", req)
	}
	require.Empty(t, h.driver.Sent())
	require.Equal(t, Idle, h.Mode())
}

func TestStatePublished(t *testing.T) {
	h := newHarness(t)
	h.frame(0, 0)
	require.NoError(t, h.Handle(SetCoordinates{RA: 1, DE: 2, Mode: Slew}))
	require.Len(t, h.states, 2)
	last := h.states[len(h.states)-1]
	require.Equal(t, GotoActive, last.Mode)
	require.Equal(t, GotoIntent{RA: 1, DE: 2, Active: true}, last.Goto)
	require.Equal(t, Slew, last.CoordSetMode)
}

func TestRequestText(t *testing.T) {
	var d Direction
	require.NoError(t, d.UnmarshalText([]byte("west")))
	require.Equal(t, Positive, d)
	require.NoError(t, d.UnmarshalText([]byte("SOUTH")))
	require.Equal(t, Negative, d)
	require.NoError(t, d.UnmarshalText([]byte("none")))
	require.Equal(t, None, d)
	require.Error(t, d.UnmarshalText([]byte("up")))

	var m CoordSetMode
	require.NoError(t, m.UnmarshalText([]byte("track")))
	require.Equal(t, Track, m)
	require.Error(t, m.UnmarshalText([]byte("")))
	require.Equal(t, "coordinate set mode(0)", CoordSetMode(0).String())

	var p PierSide
	require.NoError(t, p.UnmarshalText([]byte("West")))
	require.Equal(t, West, p)

	var a Axis
	require.NoError(t, a.UnmarshalText([]byte("de")))
	require.Equal(t, AxisDE, a)

	text, err := GotoActive.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "GOTO", string(text))
}
