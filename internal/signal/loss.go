package signal

import (
	"math"
	"math/cmplx"

	"github.com/KI7MT/ki7mt-hf-predict/internal/raytrace"
)

// Loss model constants.
const (
	AbsorptionHeight   = 100.0 // km, D-region crossing height
	MinAbsorptionIndex = 0.1   // night-time residual
	MaxDeviativeLoss   = 10.0  // dB per hop
	OverMufBasePenalty = 3.0   // dB
	OverMufSlope       = 30.0  // dB per unit of f/MUF - 1
)

// Ground describes the reflecting surface at intermediate hops.
type Ground struct {
	Permittivity float64 // relative
	Conductivity float64 // S/m
}

var (
	AverageGround = Ground{Permittivity: 15, Conductivity: 0.005}
	SeaWater      = Ground{Permittivity: 80, Conductivity: 5}
)

// Absorption carries the path-averaged D-region inputs.
type Absorption struct {
	Index float64 // George-Bradley absorption index
	Gyro  float64 // longitudinal gyrofrequency, MHz
}

// AbsorptionIndex returns (1 + 0.0037 R)·cos^1.3(0.881 χ) for a zenith angle
// in degrees, never below MinAbsorptionIndex.
func AbsorptionIndex(zenith, ssn float64) float64 {
	c := math.Cos(0.881 * zenith * math.Pi / 180)
	if c <= 0 {
		return MinAbsorptionIndex
	}
	return math.Max(MinAbsorptionIndex, (1+0.0037*ssn)*math.Pow(c, 1.3))
}

// Loss is the deterministic basic transmission loss of a mode, dB.
type Loss struct {
	FreeSpace  float64
	Absorption float64
	Ground     float64
	Deviative  float64
	OverMuf    float64
	Total      float64
}

// FreeSpaceLoss returns 32.45 + 20log f(MHz) + 20log d(km).
func FreeSpaceLoss(f, pathKm float64) float64 {
	return 32.45 + 20*math.Log10(f) + 20*math.Log10(pathKm)
}

// HopAbsorption returns the D-region absorption of a single hop, dB.
func HopAbsorption(f, elevation float64, a Absorption) float64 {
	phi := raytrace.IncidenceAngle(elevation, AbsorptionHeight)
	sec := 1 / math.Cos(phi)
	return 677.2 * a.Index * sec / (math.Pow(f+a.Gyro, 1.98) + 10.2)
}

// GroundReflectionLoss returns the loss of one ground reflection at grazing
// angle elevation (radians), averaging vertical and horizontal Fresnel
// coefficients, dB.
func GroundReflectionLoss(f, elevation float64, g Ground) float64 {
	lambda := 299.792458 / f // metres
	eps := complex(g.Permittivity, -60*lambda*g.Conductivity)
	sinB, cosB := math.Sin(elevation), math.Cos(elevation)
	root := cmplx.Sqrt(eps - complex(cosB*cosB, 0))
	s := complex(sinB, 0)

	rv := (eps*s - root) / (eps*s + root)
	rh := (s - root) / (s + root)
	mag := (cmplx.Abs(rv)*cmplx.Abs(rv) + cmplx.Abs(rh)*cmplx.Abs(rh)) / 2
	if mag <= 0 {
		return 0
	}
	return -10 * math.Log10(mag)
}

// DeviativeLoss returns the per-hop loss near the reflection point for a
// layer of critical frequency fc, dB.
func DeviativeLoss(f, elevation, reflectionHeight, fc float64) float64 {
	if fc <= 0 {
		return 0
	}
	phi := raytrace.IncidenceAngle(elevation, reflectionHeight)
	x := f * math.Cos(phi) / fc
	v := 0.5 * x * x / math.Sqrt(math.Max(1-x*x, 0.01))
	return math.Min(MaxDeviativeLoss, v)
}

// OverMufPenalty returns the extra loss of operating above the layer MUF.
func OverMufPenalty(f, muf float64) float64 {
	if muf <= 0 || f <= muf {
		return 0
	}
	return OverMufBasePenalty + OverMufSlope*(f/muf-1)
}

// ModeLoss sums every loss term for mode m at frequency f.
func ModeLoss(m raytrace.Mode, f float64, p Params) Loss {
	hops := float64(m.Hops)
	path := m.TotalGroupPath()
	if path <= 0 {
		path = raytrace.MirrorGroupPath(m.GroundDistance, m.VirtualHeight) * hops
	}

	l := Loss{
		FreeSpace:  FreeSpaceLoss(f, path),
		Absorption: hops * HopAbsorption(f, m.Elevation, p.Absorption),
		Deviative:  hops * DeviativeLoss(f, m.Elevation, m.ReflectionHeight, p.CriticalFrequency),
	}
	if m.Hops > 1 {
		l.Ground = (hops - 1) * GroundReflectionLoss(f, m.Elevation, p.Ground)
	}
	if m.OverMuf {
		l.OverMuf = OverMufPenalty(f, p.Muf.Muf)
	}
	l.Total = l.FreeSpace + l.Absorption + l.Ground + l.Deviative + l.OverMuf
	return l
}
