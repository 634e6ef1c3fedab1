package server

import (
	"fmt"
	"math"

	"github.com/w1xm/astroid_interface/mount"
)

// Command is a client request, as received over HTTP or the websocket.
type Command struct {
	Command string `json:"command"`

	// set_coordinates
	RA   float64 `json:"ra"`
	DE   float64 `json:"de"`
	Mode string  `json:"mode"`
	// set_motion_rate, in arcmin/s
	Rate float64 `json:"rate"`
	// set_manual_motion
	Axis      string `json:"axis"`
	Direction string `json:"direction"`
	// set_pier_side
	Side string `json:"side"`
	// set_longitude, set_latitude (degrees) and set_elevation (metres)
	Value float64 `json:"value"`
	// motor_power and heater
	Heater int  `json:"heater"`
	On     bool `json:"on"`
}

// maxRate bounds set_motion_rate, in arcmin/s.
const maxRate = 1000 * mount.SiderealRate

func finite(xs ...float64) error {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("value %v is not finite", x)
		}
	}
	return nil
}

func inRange(name string, x, min, max float64) error {
	if err := finite(x); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if x < min || x > max {
		return fmt.Errorf("%s %v out of range [%v, %v]", name, x, min, max)
	}
	return nil
}

// DecodeCommand validates a client command and converts it into a mount
// request. Power box commands are not mount requests and are rejected here.
func DecodeCommand(msg Command) (mount.Request, error) {
	switch msg.Command {
	case "set_coordinates":
		var mode mount.CoordSetMode
		if err := mode.UnmarshalText([]byte(msg.Mode)); err != nil {
			return nil, err
		}
		if err := inRange("ra", msg.RA, 0, 24); err != nil {
			return nil, err
		}
		if err := inRange("de", msg.DE, -180, 180); err != nil {
			return nil, err
		}
		return mount.SetCoordinates{RA: msg.RA, DE: msg.DE, Mode: mode}, nil
	case "set_motion_rate":
		if err := inRange("rate", msg.Rate, 0, maxRate); err != nil {
			return nil, err
		}
		return mount.SetMotionRate{ArcminPerSec: msg.Rate}, nil
	case "set_manual_motion":
		var req mount.SetManualMotion
		if err := req.Axis.UnmarshalText([]byte(msg.Axis)); err != nil {
			return nil, err
		}
		if err := req.Direction.UnmarshalText([]byte(msg.Direction)); err != nil {
			return nil, err
		}
		return req, nil
	case "abort":
		return mount.Abort{}, nil
	case "set_pier_side":
		var req mount.SetPierSide
		if err := req.Side.UnmarshalText([]byte(msg.Side)); err != nil {
			return nil, err
		}
		return req, nil
	case "set_longitude":
		if err := inRange("longitude", msg.Value, -180, 360); err != nil {
			return nil, err
		}
		return mount.SetGeographicLongitude{Degrees: msg.Value}, nil
	case "set_latitude":
		if err := inRange("latitude", msg.Value, -90, 90); err != nil {
			return nil, err
		}
		return mount.SetGeographicLatitude{Degrees: msg.Value}, nil
	case "set_elevation":
		if err := finite(msg.Value); err != nil {
			return nil, fmt.Errorf("elevation: %w", err)
		}
		return mount.SetGeographicElevation{Meters: msg.Value}, nil
	}
	return nil, fmt.Errorf("unknown command %q", msg.Command)
}
