package mount

import (
	"math"

	"github.com/w1xm/astroid_interface/astroid"
	"github.com/w1xm/astroid_interface/sky"
)

// GotoIntent is the target of an active slew.
type GotoIntent struct {
	RA     float64
	DE     float64
	Active bool
}

// regular reports whether de lies in the half-turn (-90, 90] that can be
// reached without passing through the pole.
func regular(de float64) bool {
	return de > -90 && de <= 90
}

// tier picks the speed for a signed distance: full speed beyond slow, reduced
// speed beyond stop, and zero inside the stop zone.
func (c Config) tier(distance, slow, stop float64) float32 {
	var speed float32
	switch d := math.Abs(distance); {
	case d > slow:
		speed = c.GotoSpeed
	case d > stop:
		speed = c.GotoSlowSpeed
	default:
		return 0
	}
	if distance < 0 {
		return -speed
	}
	return speed
}

// gotoSpeeds computes one closed-loop step towards target from the current
// position. Both axes return zero once inside their stop zones.
func (c Config) gotoSpeeds(target GotoIntent, ra, de float64, side PierSide) astroid.Command {
	var speedDE float32
	if regular(target.DE) != regular(de) {
		// Go through the pole first.
		speedDE = -c.GotoSpeed
		if regular(de) {
			speedDE = c.GotoSpeed
		}
	} else {
		speedDE = c.tier(target.DE-de, c.GotoSlowDistance, c.GotoStopDistance)
	}

	// Shortest way round, in (-12, 12].
	distanceRA := sky.Mod24(target.RA-ra+12) - 12
	speedRA := c.tier(distanceRA, c.GotoSlowDistance*24/360, c.GotoStopDistance*24/360)

	return astroid.Command{
		SpeedRA: c.raSpeed(speedRA),
		SpeedDE: c.deSpeed(speedDE, side),
	}
}

// raSpeed converts a speed along increasing right ascension into a motor
// speed. Right ascension grows as the hour angle shrinks.
func (g Geometry) raSpeed(speed float32) float32 {
	if speed == 0 {
		return 0
	}
	return -speed * float32(g.raSign())
}

// deSpeed converts a speed along increasing declination into a motor speed.
func (g Geometry) deSpeed(speed float32, side PierSide) float32 {
	if speed == 0 {
		return 0
	}
	return speed * float32(g.deSign()*side.sign())
}
