package sky

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestMod24(t *testing.T) {
	for _, test := range []struct {
		in, want float64
	}{
		{-1, 23},
		{25, 1},
		{0, 0},
		{24, 0},
		{-24, 0},
		{47.5, 23.5},
		{-1e-17, 0},
	} {
		if got := Mod24(test.in); got != test.want {
			t.Errorf("Mod24(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestMod360(t *testing.T) {
	for _, test := range []struct {
		in, want float64
	}{
		{200, -160},
		{-200, 160},
		{180, -180},
		{-180, -180},
		{0, 0},
		{360, 0},
		{539, 179},
	} {
		if got := Mod360(test.in); got != test.want {
			t.Errorf("Mod360(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestModRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		x := (rng.Float64() - 0.5) * 1e6
		if r := Mod24(x); r < 0 || r >= 24 {
			t.Fatalf("Mod24(%v) = %v out of range", x, r)
		}
		if r := Mod360(x); r < -180 || r >= 180 {
			t.Fatalf("Mod360(%v) = %v out of range", x, r)
		}
	}
}

func TestSiderealTime(t *testing.T) {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := float64(j2000.UnixMilli()); got != J2000 {
		t.Fatalf("J2000 = %v, want %v", J2000, got)
	}
	if got, want := SiderealTime(j2000, 0), 18.697374558; math.Abs(got-want) > 1e-9 {
		t.Errorf("SiderealTime(J2000, 0) = %v, want %v", got, want)
	}
	// 90 degrees east is 6 hours later.
	if got, want := SiderealTime(j2000, 90), Mod24(18.697374558+6); math.Abs(got-want) > 1e-9 {
		t.Errorf("SiderealTime(J2000, 90) = %v, want %v", got, want)
	}
	// One sidereal day later the sidereal time repeats.
	later := j2000.Add(time.Duration(86164.0905 * float64(time.Second)))
	if d := math.Abs(SiderealTime(later, 0) - SiderealTime(j2000, 0)); d > 1e-4 {
		t.Errorf("sidereal time drifted %v hours over a sidereal day", d)
	}
}

func TestNormalize(t *testing.T) {
	for _, test := range []struct {
		ra, de         float64
		wantRA, wantDE float64
	}{
		{1, 45, 1, 45},
		{1, 100, 13, 80},
		{20, -120, 8, -60},
		{3, 90, 3, 90},
		{3, -180, 15, 0},
	} {
		ra, de := Normalize(test.ra, test.de)
		if math.Abs(ra-test.wantRA) > 1e-12 || math.Abs(de-test.wantDE) > 1e-12 {
			t.Errorf("Normalize(%v, %v) = (%v, %v), want (%v, %v)", test.ra, test.de, ra, de, test.wantRA, test.wantDE)
		}
	}
}

func TestSexagesimal(t *testing.T) {
	for _, test := range []struct {
		in   float64
		want string
	}{
		{1.5, "01:30:00.0"},
		{-12.25, "-12:15:00.0"},
		{23.999999, "24:00:00.0"},
		{0.5 / 3600, "00:00:00.5"},
	} {
		if got := Sexagesimal(test.in); got != test.want {
			t.Errorf("Sexagesimal(%v) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestHorizontal(t *testing.T) {
	for _, test := range []struct {
		name            string
		ha, de, lat     float64
		wantAz, wantAlt float64
	}{
		{"meridian equator", 0, 0, 45, 180, 45},
		{"zenith", 0, 45, 45, 0, 90},
		{"pole", 0, 90, 45, 0, 45},
		{"rising east", -6, 0, 0, 90, 0},
		{"setting west", 6, 0, 0, 270, 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			az, alt := Horizontal(test.ha, test.de, test.lat)
			if math.Abs(alt-test.wantAlt) > 1e-6 {
				t.Errorf("alt = %v, want %v", alt, test.wantAlt)
			}
			if test.wantAlt < 89.999 && math.Abs(az-test.wantAz) > 1e-4 {
				t.Errorf("az = %v, want %v", az, test.wantAz)
			}
		})
	}
}
