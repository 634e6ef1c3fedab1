// Package sky has the time and angle arithmetic shared by the mount model.
// Right ascension and hour angle are in hours, everything else in degrees.
package sky

import (
	"fmt"
	"math"
	"time"
)

const msPerDay = 86400e3

// J2000 is the epoch 2000-01-01 12:00 UTC, in milliseconds since the Unix epoch.
const J2000 = 10957.5 * msPerDay

const (
	gmstAtJ2000 = 18.697374558
	// Sidereal hours elapsed per solar day.
	gmstPerDay = 24.06570982441908
)

// SiderealTime returns the local sidereal time in hours at the given longitude (degrees east).
func SiderealTime(t time.Time, longitude float64) float64 {
	d := (float64(t.UnixMilli()) - J2000) / msPerDay
	gmst := gmstAtJ2000 + gmstPerDay*d
	return Mod24(gmst + longitude/360*24)
}

// Mod24 reduces x into [0,24).
func Mod24(x float64) float64 {
	r := math.Mod(x, 24)
	if r < 0 {
		r += 24
	}
	// -1e-17 + 24 rounds to 24.
	if r >= 24 {
		r = 0
	}
	return r
}

// Mod360 reduces x into [-180,180).
func Mod360(x float64) float64 {
	r := math.Mod(x, 360)
	if r < 0 {
		r += 360
	}
	if r >= 180 {
		r -= 360
	}
	return r
}

// Normalize folds a declination beyond a pole back into [-90,90], moving the
// right ascension by 12h. Both pairs describe the same point on the sky.
func Normalize(ra, de float64) (float64, float64) {
	de = Mod360(de)
	switch {
	case de > 90:
		return Mod24(ra + 12), 180 - de
	case de < -90:
		return Mod24(ra + 12), -180 - de
	}
	return Mod24(ra), de
}

// Sexagesimal formats x as [-]dd:mm:ss.s, as used for both hours and degrees.
func Sexagesimal(x float64) string {
	sign := ""
	if x < 0 {
		sign = "-"
		x = -x
	}
	tenths := int64(math.Round(x * 36000))
	d := tenths / 36000
	m := tenths / 600 % 60
	s := float64(tenths%600) / 10
	return fmt.Sprintf("%s%02d:%02d:%04.1f", sign, d, m, s)
}
