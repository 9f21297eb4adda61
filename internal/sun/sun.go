// Package sun computes the solar quantities the ionospheric model needs:
// zenith angle and local mean time at a location.
package sun

import (
	"math"
	"time"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
)

// Position returns the solar declination (radians) and the equation of time
// (minutes) for the given UTC instant. It uses the apparent ecliptic
// longitude and mean obliquity from the Astronomical Almanac low-precision
// series, good to about 0.01 degree in declination.
func Position(t time.Time) (declination, eqTime float64) {
	n := float64(t.UTC().UnixNano())/(86400*1e9) + unixEpochJD - j2000

	meanLon := normDeg(280.460 + 0.9856474*n)
	anomaly := (357.528 + 0.9856003*n) * deg
	lambda := (meanLon + 1.915*math.Sin(anomaly) + 0.020*math.Sin(2*anomaly)) * deg
	obliquity := (23.439 - 0.0000004*n) * deg

	declination = math.Asin(math.Sin(obliquity) * math.Sin(lambda))

	ra := math.Atan2(math.Cos(obliquity)*math.Sin(lambda), math.Cos(lambda)) / deg
	diff := math.Mod(meanLon-ra+540, 360) - 180
	eqTime = 4 * diff
	return declination, eqTime
}

const (
	deg         = math.Pi / 180
	unixEpochJD = 2440587.5
	j2000       = 2451545.0
)

func normDeg(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x
}

// ZenithAngle returns the solar zenith angle in degrees at p for UTC instant t.
func ZenithAngle(p geo.Point, t time.Time) float64 {
	decl, eqTime := Position(t)
	t = t.UTC()
	minutes := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
	trueSolar := minutes + eqTime + 4*p.Lon
	hourAngle := (trueSolar/4 - 180) * math.Pi / 180

	lat := p.Lat * math.Pi / 180
	cosZ := math.Sin(lat)*math.Sin(decl) + math.Cos(lat)*math.Cos(decl)*math.Cos(hourAngle)
	cosZ = math.Max(-1, math.Min(1, cosZ))
	return math.Acos(cosZ) * 180 / math.Pi
}

// LocalTimeFraction returns local mean time at longitude lon as a fraction
// of a day in [0, 1).
func LocalTimeFraction(lon float64, t time.Time) float64 {
	t = t.UTC()
	hours := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600 + lon/15
	frac := math.Mod(hours/24, 1)
	if frac < 0 {
		frac += 1
	}
	return frac
}
