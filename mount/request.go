package mount

import (
	"fmt"
	"strings"
)

// Request is one of the operations a client can ask of the mount:
// SetCoordinates, SetMotionRate, SetManualMotion, Abort, SetPierSide,
// SetGeographicLongitude, SetGeographicLatitude or SetGeographicElevation.
type Request interface {
	request()
}

// SetCoordinates syncs to, or starts a goto towards, the given position.
type SetCoordinates struct {
	RA   float64
	DE   float64
	Mode CoordSetMode
}

// SetMotionRate sets the manual motion rate in arcmin/s.
type SetMotionRate struct {
	ArcminPerSec float64
}

type SetManualMotion struct {
	Axis      Axis
	Direction Direction
}

type Abort struct{}

type SetPierSide struct {
	Side PierSide
}

// SetGeographicLongitude sets the site longitude, in degrees east.
type SetGeographicLongitude struct {
	Degrees float64
}

type SetGeographicLatitude struct {
	Degrees float64
}

type SetGeographicElevation struct {
	Meters float64
}

func (SetCoordinates) request()         {}
func (SetMotionRate) request()          {}
func (SetManualMotion) request()        {}
func (Abort) request()                  {}
func (SetPierSide) request()            {}
func (SetGeographicLongitude) request() {}
func (SetGeographicLatitude) request()  {}
func (SetGeographicElevation) request() {}

// enum implements text marshalling for the small string-named types below.
type enum struct {
	kind  string
	names []string
}

func (e enum) name(v int) string {
	if v < 0 || v >= len(e.names) || e.names[v] == "" {
		return fmt.Sprintf("%s(%d)", e.kind, v)
	}
	return e.names[v]
}

func (e enum) parse(text []byte) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, n := range e.names {
		if n != "" && n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", e.kind, text)
}

// CoordSetMode selects what SetCoordinates does. The zero value is not a
// valid mode.
type CoordSetMode int

const (
	Slew CoordSetMode = iota + 1
	Track
	Sync
)

var coordSetModes = enum{"coordinate set mode", []string{"", "SLEW", "TRACK", "SYNC"}}

func (m CoordSetMode) String() string { return coordSetModes.name(int(m)) }

func (m CoordSetMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *CoordSetMode) UnmarshalText(text []byte) error {
	v, err := coordSetModes.parse(text)
	*m = CoordSetMode(v)
	return err
}

type Axis int

const (
	AxisRA Axis = iota
	AxisDE
)

var axes = enum{"axis", []string{"RA", "DE"}}

func (a Axis) String() string { return axes.name(int(a)) }

func (a Axis) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Axis) UnmarshalText(text []byte) error {
	v, err := axes.parse(text)
	*a = Axis(v)
	return err
}

// Direction of manual motion. On the RA axis Positive is west, on the DE
// axis it is north.
type Direction int

const (
	None Direction = iota
	Positive
	Negative
)

var directions = enum{"direction", []string{"NONE", "POSITIVE", "NEGATIVE"}}

func (d Direction) String() string { return directions.name(int(d)) }

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "WEST", "NORTH":
		*d = Positive
		return nil
	case "EAST", "SOUTH":
		*d = Negative
		return nil
	}
	v, err := directions.parse(text)
	*d = Direction(v)
	return err
}

func (d Direction) sign() float32 {
	switch d {
	case Positive:
		return 1
	case Negative:
		return -1
	}
	return 0
}

// PierSide is the side of a German equatorial mount the telescope is on.
// On the East side a positive DE speed increases the declination.
type PierSide int

const (
	East PierSide = iota
	West
)

var pierSides = enum{"pier side", []string{"EAST", "WEST"}}

func (p PierSide) String() string { return pierSides.name(int(p)) }

func (p PierSide) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PierSide) UnmarshalText(text []byte) error {
	v, err := pierSides.parse(text)
	*p = PierSide(v)
	return err
}

func (p PierSide) sign() float64 {
	if p == East {
		return 1
	}
	return -1
}

// Mode is the motion state of the mount.
type Mode int

const (
	Idle Mode = iota
	ManualMotion
	GotoActive
)

var modes = enum{"mode", []string{"IDLE", "MANUAL", "GOTO"}}

func (m Mode) String() string { return modes.name(int(m)) }

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(text []byte) error {
	v, err := modes.parse(text)
	*m = Mode(v)
	return err
}
