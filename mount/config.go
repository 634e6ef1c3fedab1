package mount

import "time"

// SiderealRate is the apparent rotation of the sky, in arcmin/s. Device
// speeds are expressed in multiples of it.
const SiderealRate = 360. * 60. / 86164.09053

// Geometry describes how motor steps map onto the axes.
type Geometry struct {
	// StepsPerTurn is the number of motor steps for a full turn of an axis.
	StepsPerTurn float64
	// InvertRA and InvertDE flip the motor direction of an axis.
	InvertRA bool
	InvertDE bool
}

func (g Geometry) raSign() float64 {
	if g.InvertRA {
		return -1
	}
	return 1
}

func (g Geometry) deSign() float64 {
	if g.InvertDE {
		return -1
	}
	return 1
}

type Config struct {
	Geometry

	// Speeds are multiples of the sidereal rate.
	MaxSpeed      float32
	GotoSpeed     float32
	GotoSlowSpeed float32
	// GotoSlowDistance and GotoStopDistance are in degrees of declination;
	// right ascension uses the same angles converted to hours.
	GotoSlowDistance float64
	GotoStopDistance float64

	// LinkTimeout is how stale telemetry may get before the link is flagged.
	LinkTimeout time.Duration
	// MotionRate is the initial manual motion rate in arcmin/s.
	MotionRate float64
}

func DefaultConfig() Config {
	const maxSpeed = 240
	return Config{
		Geometry: Geometry{
			StepsPerTurn: 50 * 3 * 144,
			InvertRA:     true,
			InvertDE:     false,
		},
		MaxSpeed:         maxSpeed,
		GotoSpeed:        maxSpeed,
		GotoSlowSpeed:    maxSpeed / 10,
		GotoSlowDistance: 15. / 60.,
		GotoStopDistance: 1. / 60.,
		LinkTimeout:      1000 * time.Millisecond,
		MotionRate:       maxSpeed * SiderealRate,
	}
}
