// Package mount turns sky coordinate requests into axis speeds for an
// equatorial mount, and telemetry back into sky coordinates.
package mount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/w1xm/astroid_interface/astroid"
	"github.com/w1xm/astroid_interface/sky"
)

// Driver carries command frames to the motion controller. *astroid.Device
// implements it.
type Driver interface {
	Send(c astroid.Command) error
}

type StateCallback func(state State)

var ErrNoTelemetry = errors.New("mount: no telemetry received yet")

// Site is the observer's location.
type Site struct {
	// Latitude and Longitude are in degrees, north and east positive.
	Latitude  float64
	Longitude float64
	// Elevation is in metres.
	Elevation float64
}

// State is a snapshot of everything the mount reports to clients.
type State struct {
	// RA is in hours, DE in degrees. DE is not folded: values beyond ±90
	// mean the telescope is past the pole.
	RA, DE float64
	// Az and Alt are in degrees.
	Az, Alt float64
	// LST is the local sidereal time in hours.
	LST float64

	Link         LinkState
	LastStatus   time.Time
	PierSide     PierSide
	CoordSetMode CoordSetMode
	Mode         Mode
	// MotionRate is the manual motion rate in arcmin/s.
	MotionRate float64
	ManualRA   Direction
	ManualDE   Direction
	Goto       GotoIntent

	// Command is the last frame the controller accepted.
	Command     astroid.Command
	Status      astroid.Status
	Site        Site
	Calibration Calibration

	// Seq increases with every snapshot; a higher Seq is newer.
	Seq uint64
}

type Mount struct {
	cfg           Config
	stateCallback StateCallback
	now           func() time.Time

	mu         sync.Mutex
	driver     Driver
	site       Site
	side       PierSide
	coordMode  CoordSetMode
	cal        Calibration
	target     GotoIntent
	manualRA   Direction
	manualDE   Direction
	rate       float32
	command    astroid.Command
	status     astroid.Status
	haveStatus bool
	link       LinkMonitor
	sendErr    error
	ra, de     float64
	seq        uint64

	pubMu     sync.Mutex
	published uint64
}

func New(cfg Config, site Site, stateCallback StateCallback) *Mount {
	m := &Mount{
		cfg:           cfg,
		stateCallback: stateCallback,
		now:           time.Now,
		site:          site,
		side:          East,
		coordMode:     Slew,
		rate:          float32(cfg.MotionRate / SiderealRate),
		link:          LinkMonitor{Timeout: cfg.LinkTimeout},
	}
	m.cal.Reset(astroid.Status{}, m.lst(m.now()), cfg.Geometry)
	return m
}

// Attach sets the driver used for commands. The calibration is reset when
// the next status frame arrives.
func (m *Mount) Attach(driver Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driver = driver
	m.haveStatus = false
}

// Reconnected forgets the calibration of the previous session. The next
// status frame anchors a new one. Use it as the device's connect callback.
func (m *Mount) Reconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.haveStatus {
		log.Info("controller reconnected, calibration reset")
	}
	m.haveStatus = false
}

func (m *Mount) lst(now time.Time) float64 {
	return sky.SiderealTime(now, m.site.Longitude)
}

// Handle applies a client request. It returns an error only for requests it
// cannot interpret.
func (m *Mount) Handle(req Request) error {
	now := m.now()
	m.mu.Lock()
	err := m.handle(req, now)
	state := m.state(now)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.publish(state)
	return nil
}

func (m *Mount) handle(req Request, now time.Time) error {
	switch r := req.(type) {
	case SetCoordinates:
		ra, de := sky.Mod24(r.RA), sky.Mod360(r.DE)
		switch r.Mode {
		case Sync:
			if !m.haveStatus {
				return ErrNoTelemetry
			}
			lst := m.lst(now)
			m.cal.Sync(ra, de, m.status, lst, m.cfg.Geometry)
			m.updatePosition(lst)
			log.WithFields(log.Fields{
				"ra": sky.Sexagesimal(ra),
				"de": sky.Sexagesimal(de),
			}).Info("synced")
		case Slew, Track:
			m.manualRA, m.manualDE = None, None
			m.target = GotoIntent{RA: ra, DE: de, Active: true}
			log.WithFields(log.Fields{
				"ra":   sky.Sexagesimal(ra),
				"de":   sky.Sexagesimal(de),
				"mode": r.Mode,
			}).Info("goto started")
		default:
			return fmt.Errorf("mount: invalid coordinate set mode %v", r.Mode)
		}
		m.coordMode = r.Mode
	case SetMotionRate:
		m.rate = float32(r.ArcminPerSec / SiderealRate)
		if m.manualRA != None || m.manualDE != None {
			m.send(m.manualCommand(), true)
		}
	case SetManualMotion:
		switch r.Direction {
		case None, Positive, Negative:
		default:
			return fmt.Errorf("mount: invalid direction %v", r.Direction)
		}
		switch r.Axis {
		case AxisRA:
			m.manualRA = r.Direction
		case AxisDE:
			m.manualDE = r.Direction
		default:
			return fmt.Errorf("mount: invalid axis %v", r.Axis)
		}
		if m.target.Active {
			log.Info("goto canceled by manual motion")
		}
		m.target.Active = false
		m.send(m.manualCommand(), true)
	case Abort:
		m.target.Active = false
		m.manualRA, m.manualDE = None, None
		m.send(astroid.Command{}, true)
		log.Info("motion aborted")
	case SetPierSide:
		if r.Side != East && r.Side != West {
			return fmt.Errorf("mount: invalid pier side %v", r.Side)
		}
		if r.Side == m.side {
			return nil
		}
		m.side = r.Side
		m.cal.Flip()
		m.updatePosition(m.lst(now))
		log.WithField("side", r.Side).Info("pier side changed")
	case SetGeographicLongitude:
		m.site.Longitude = r.Degrees
		m.updatePosition(m.lst(now))
	case SetGeographicLatitude:
		m.site.Latitude = r.Degrees
	case SetGeographicElevation:
		m.site.Elevation = r.Meters
	default:
		return fmt.Errorf("mount: unknown request %T", req)
	}
	return nil
}

// manualCommand computes the axis speeds from the manual direction flags.
func (m *Mount) manualCommand() astroid.Command {
	// Positive RA motion is westwards, i.e. decreasing right ascension.
	return astroid.Command{
		SpeedRA: m.cfg.raSpeed(-m.manualRA.sign() * m.rate),
		SpeedDE: m.cfg.deSpeed(m.manualDE.sign()*m.rate, m.side),
	}
}

// send emits a frame if cmd differs from the last one sent successfully, or
// unconditionally when force is set. A failed frame is retried by the next
// goto step.
func (m *Mount) send(cmd astroid.Command, force bool) {
	if !force && cmd == m.command {
		return
	}
	if m.driver == nil {
		m.sendErr = &astroid.TransportError{Op: "write", Err: astroid.ErrNotConnected}
		return
	}
	if err := m.driver.Send(cmd); err != nil {
		if m.sendErr == nil {
			log.WithError(err).Warn("sending command")
		}
		m.sendErr = err
		return
	}
	m.command = cmd
	m.sendErr = nil
}

func (m *Mount) updatePosition(lst float64) {
	if !m.haveStatus {
		return
	}
	m.ra, m.de = m.cal.Position(m.status, lst, m.side, m.cfg.Geometry)
}

// HandleStatus takes a telemetry frame from the controller. It is meant to be
// used as the device's status callback.
func (m *Mount) HandleStatus(status astroid.Status) {
	now := m.now()
	lst := m.lst(now)
	m.mu.Lock()
	if !m.haveStatus || int32(status.DeviceClock-m.status.DeviceClock) < 0 {
		if m.haveStatus {
			log.WithFields(log.Fields{
				"old": m.status.DeviceClock,
				"new": status.DeviceClock,
			}).Warn("controller clock went backwards, calibration reset")
		}
		m.cal.Reset(status, lst, m.cfg.Geometry)
	}
	m.status = status
	m.haveStatus = true
	m.sendErr = nil
	m.link.Observe(now)
	m.updatePosition(lst)
	if m.target.Active {
		cmd := m.cfg.gotoSpeeds(m.target, m.ra, m.de, m.side)
		m.send(cmd, false)
		if cmd == (astroid.Command{}) && m.command == cmd {
			m.target.Active = false
			log.WithFields(log.Fields{
				"ra": sky.Sexagesimal(m.ra),
				"de": sky.Sexagesimal(m.de),
			}).Info("goto complete")
		}
	}
	state := m.state(now)
	m.mu.Unlock()
	m.publish(state)
}

// Run refreshes the sidereal time and the link state once a second until ctx
// is canceled.
func (m *Mount) Run(ctx context.Context) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		m.tick()
	}
}

func (m *Mount) tick() {
	now := m.now()
	m.mu.Lock()
	m.updatePosition(m.lst(now))
	link, changed := m.link.Check(now)
	if changed {
		log.WithField("link", link).Info("link state changed")
	}
	state := m.state(now)
	m.mu.Unlock()
	m.publish(state)
}

// publish hands a snapshot to the state callback, dropping it if a newer
// one has already gone out.
func (m *Mount) publish(state State) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	if state.Seq <= m.published {
		return
	}
	m.published = state.Seq
	if m.stateCallback != nil {
		m.stateCallback(state)
	}
}

func (m *Mount) mode() Mode {
	switch {
	case m.target.Active:
		return GotoActive
	case m.manualRA != None || m.manualDE != None:
		return ManualMotion
	}
	return Idle
}

// Mode returns the current motion state.
func (m *Mount) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode()
}

// State returns a snapshot of the mount.
func (m *Mount) State() State {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state(now)
}

func (m *Mount) state(now time.Time) State {
	m.seq++
	lst := m.lst(now)
	link := m.link.State()
	if m.sendErr != nil {
		link = LinkAlert
	}
	ra, de := sky.Normalize(m.ra, m.de)
	az, alt := sky.Horizontal(lst-ra, de, m.site.Latitude)
	return State{
		RA:           m.ra,
		DE:           m.de,
		Az:           az,
		Alt:          alt,
		LST:          lst,
		Link:         link,
		LastStatus:   m.link.LastStatus(),
		PierSide:     m.side,
		CoordSetMode: m.coordMode,
		Mode:         m.mode(),
		MotionRate:   float64(m.rate) * SiderealRate,
		ManualRA:     m.manualRA,
		ManualDE:     m.manualDE,
		Goto:         m.target,
		Command:      m.command,
		Status:       m.status,
		Site:         m.site,
		Calibration:  m.cal,
		Seq:          m.seq,
	}
}
