// Package geomag implements a centred-dipole geomagnetic field model.
// It supplies geomagnetic coordinates for the ionospheric maps and the dip
// angle and gyrofrequency used by the absorption model.
package geomag

import (
	"math"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
)

// Dipole pole position (IGRF-13, epoch 2020) and equatorial surface field.
const (
	PoleLat        = 80.65
	PoleLon        = -72.68
	EquatorFieldNT = 29840.0

	// gyrofrequency per unit field, MHz per nT
	gyroMHzPerNT = 2.799e-5
)

// Field is the dipole field description at one location.
type Field struct {
	Latitude      float64 // geomagnetic latitude, degrees
	Longitude     float64 // geomagnetic longitude, degrees
	Dip           float64 // inclination, degrees (positive downwards, northern hemisphere)
	Gyrofrequency float64 // electron gyrofrequency at the given height, MHz
}

// At evaluates the dipole at p for a height in km above the surface.
func At(p geo.Point, heightKm float64) Field {
	lat := p.Lat * math.Pi / 180
	lon := p.Lon * math.Pi / 180
	plat := PoleLat * math.Pi / 180
	plon := PoleLon * math.Pi / 180

	sinM := math.Sin(lat)*math.Sin(plat) + math.Cos(lat)*math.Cos(plat)*math.Cos(lon-plon)
	sinM = math.Max(-1, math.Min(1, sinM))
	mlat := math.Asin(sinM)

	y := math.Cos(lat) * math.Sin(lon-plon)
	x := math.Cos(lat)*math.Sin(plat)*math.Cos(lon-plon) - math.Sin(lat)*math.Cos(plat)
	mlon := math.Atan2(y, x)

	dip := math.Atan(2 * math.Tan(mlat))

	scale := geo.EarthRadiusKm / (geo.EarthRadiusKm + heightKm)
	b := EquatorFieldNT * scale * scale * scale * math.Sqrt(1+3*sinM*sinM)

	return Field{
		Latitude:      mlat * 180 / math.Pi,
		Longitude:     mlon * 180 / math.Pi,
		Dip:           dip * 180 / math.Pi,
		Gyrofrequency: b * gyroMHzPerNT,
	}
}

// Longitudinal returns the gyrofrequency component along the propagation
// direction for near-vertical rays (fH·|sin I|), used by the absorption formula.
func (f Field) Longitudinal() float64 {
	return f.Gyrofrequency * math.Abs(math.Sin(f.Dip*math.Pi/180))
}
