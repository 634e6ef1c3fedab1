package sky

import "math"

// equhor converts between azimuth/altitude and hour-angle/declination.
// Phi is the observer's latitude
// Arguments are in radians
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := (sy * sphi) + (cy * cphi * cx)
	q := math.Asin(clamp(sq))

	den := cphi * math.Cos(q)
	if den == 0 {
		// At the zenith or on a pole the azimuth is undefined.
		return 0, q
	}
	p := math.Acos(clamp((sy - (sphi * sq)) / den))
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

// Horizontal returns the azimuth (degrees east of north) and altitude of a
// point at hour angle ha (hours) and declination de, seen from latitude lat.
func Horizontal(ha, de, lat float64) (az, alt float64) {
	p, q := equhor(deg2rad(ha*15), deg2rad(de), deg2rad(lat))
	return rad2deg(p), rad2deg(q)
}
