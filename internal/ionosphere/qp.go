package ionosphere

import (
	"math"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
)

// R0 is the Earth radius used by the profile geometry, km.
const R0 = geo.EarthRadiusKm

// Segment is one quasi-parabolic layer:
//
//	fN²(r) = fc² [1 - ((r-rm)/ym)² (rb/r)²],  rb = rm - ym
//
// F2 is modelled by its bottomside only; E and F1 include the topside.
type Segment struct {
	Layer             Layer
	CriticalFrequency float64 // MHz
	PeakHeight        float64 // km
	SemiThickness     float64 // km
	Topside           bool
}

// Base is the height where the layer starts, km.
func (s Segment) Base() float64 { return s.PeakHeight - s.SemiThickness }

// Top is the height where the layer ends: the QP topside zero, or the peak
// for bottomside-only layers.
func (s Segment) Top() float64 {
	if !s.Topside {
		return s.PeakHeight
	}
	rm := R0 + s.PeakHeight
	rb := rm - s.SemiThickness
	return rm*rb/(rb-s.SemiThickness) - R0
}

// PlasmaFrequency2 returns fN² at height h (km), zero outside the layer.
func (s Segment) PlasmaFrequency2(h float64) float64 {
	if h < s.Base() || h > s.Top() {
		return 0
	}
	r := R0 + h
	rm := R0 + s.PeakHeight
	rb := rm - s.SemiThickness
	z := (r - rm) / s.SemiThickness * rb / r
	return math.Max(0, s.CriticalFrequency*s.CriticalFrequency*(1-z*z))
}

// Quadratic is μ²r² - γ² written as A r² + B r + C, where μ is the
// refractive index at radius r and γ = R0 cos β is Bouguer's constant.
type Quadratic struct {
	A, B, C float64
}

// FreeSpace is the quadratic of a ray with Bouguer constant gamma in vacuum.
func FreeSpace(gamma float64) Quadratic {
	return Quadratic{A: 1, C: -gamma * gamma}
}

// Quadratic returns the QP coefficients at frequency f (MHz).
func (s Segment) Quadratic(f, gamma float64) Quadratic {
	x := s.CriticalFrequency * s.CriticalFrequency / (f * f)
	rm := R0 + s.PeakHeight
	rb := rm - s.SemiThickness
	k := x * rb * rb / (s.SemiThickness * s.SemiThickness)
	return Quadratic{
		A: 1 - x + k,
		B: -2 * rm * k,
		C: k*rm*rm - gamma*gamma,
	}
}

// Eval returns Q(r).
func (q Quadratic) Eval(r float64) float64 {
	return (q.A*r+q.B)*r + q.C
}

// Discriminant returns B² - 4AC.
func (q Quadratic) Discriminant() float64 {
	return q.B*q.B - 4*q.A*q.C
}

// MinOn returns the minimum of Q on [r1, r2].
func (q Quadratic) MinOn(r1, r2 float64) float64 {
	m := math.Min(q.Eval(r1), q.Eval(r2))
	if q.A > 0 {
		v := -q.B / (2 * q.A)
		if v > r1 && v < r2 {
			m = math.Min(m, q.Eval(v))
		}
	}
	return m
}

// FirstRoot returns the smallest root of Q in (r1, r2].
func (q Quadratic) FirstRoot(r1, r2 float64) (float64, bool) {
	const eps = 1e-12
	if math.Abs(q.A) < eps {
		if math.Abs(q.B) < eps {
			return 0, false
		}
		r := -q.C / q.B
		return r, r > r1 && r <= r2
	}
	d := q.Discriminant()
	if d < 0 {
		return 0, false
	}
	sq := math.Sqrt(d)
	var t float64
	if q.B >= 0 {
		t = -0.5 * (q.B + sq)
	} else {
		t = -0.5 * (q.B - sq)
	}
	roots := []float64{t / q.A}
	if t != 0 {
		roots = append(roots, q.C/t)
	}
	best, ok := 0.0, false
	for _, r := range roots {
		if r > r1 && r <= r2 && (!ok || r < best) {
			best, ok = r, true
		}
	}
	return best, ok
}
