// Package raytrace traces oblique rays through quasi-parabolic profiles,
// finds propagation modes for a path and computes layer and circuit MUFs.
//
// Ray geometry follows the spherical Bouguer invariant: a ray leaving the
// ground at elevation β keeps μ·r·cos(φ) = R0·cos β. Inside a QP segment
// μ²r² - γ² is quadratic in r, which lets the ground range and group path be
// integrated in closed form.
package raytrace

import (
	"math"

	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
)

const r0 = ionosphere.R0

// Ray is the result of tracing one elevation angle at one frequency.
// Distances are for the complete hop (up and down).
type Ray struct {
	Frequency        float64 // MHz
	Elevation        float64 // radians
	Reflected        bool
	Layer            ionosphere.Layer
	ReflectionHeight float64 // true height, km
	GroundDistance   float64 // km
	GroupPath        float64 // km
}

// VirtualHeight returns the mirror height that reproduces the hop's ground
// distance at the ray's elevation over a spherical Earth.
func (r Ray) VirtualHeight() float64 {
	return VirtualHeight(r.Elevation, r.GroundDistance)
}

// VirtualHeight converts a hop's elevation (radians) and ground distance to
// an equivalent reflection height, km.
func VirtualHeight(beta, hopDistance float64) float64 {
	psi := hopDistance / (2 * r0)
	c := math.Cos(beta + psi)
	if c <= 0 {
		return math.Inf(1)
	}
	return r0*math.Cos(beta)/c - r0
}

// HopElevation returns the elevation (radians) of a mirror hop of the given
// ground distance reflecting at height h.
func HopElevation(hopDistance, h float64) float64 {
	psi := hopDistance / (2 * r0)
	return math.Atan2(math.Cos(psi)-r0/(r0+h), math.Sin(psi))
}

// IncidenceAngle returns the angle from vertical (radians) at which a ray
// leaving the ground at elevation beta crosses height h.
func IncidenceAngle(beta, h float64) float64 {
	return math.Asin(math.Min(1, r0*math.Cos(beta)/(r0+h)))
}

// MirrorGroupPath returns the straight-line group path of a hop reflecting
// at virtual height h over the given ground distance, km.
func MirrorGroupPath(hopDistance, h float64) float64 {
	psi := hopDistance / (2 * r0)
	rh := r0 + h
	return 2 * math.Sqrt(r0*r0+rh*rh-2*r0*rh*math.Cos(psi))
}

// Trace follows a ray of frequency f (MHz) launched at elevation beta
// (radians) up through the profile until it turns or leaves the top.
func Trace(p *ionosphere.Profile, f, beta float64) Ray {
	ray := Ray{Frequency: f, Elevation: beta}
	if f <= 0 || beta <= 0 {
		return ray
	}
	gamma := r0 * math.Cos(beta)
	theta, path := 0.0, 0.0
	lastLayer := ionosphere.Layer(-1)

	for i, pc := range p.Pieces {
		r1, r2 := r0+pc.Lower, r0+pc.Upper
		q := p.PieceQuadratic(i, f, gamma)
		if !pc.Gap() {
			lastLayer = p.SegmentLayer(pc.Segment)
		}

		if q.Eval(r1) <= 0 {
			ray.Reflected = true
			ray.Layer = lastLayer
			ray.ReflectionHeight = pc.Lower
			break
		}
		if rt, ok := q.FirstRoot(r1, r2); ok {
			theta += groundAngle(q, gamma, r1, rt, true)
			path += groupPath(q, r1, rt, true)
			ray.Reflected = true
			ray.Layer = lastLayer
			ray.ReflectionHeight = rt - r0
			break
		}
		theta += groundAngle(q, gamma, r1, r2, false)
		path += groupPath(q, r1, r2, false)
	}

	if ray.Reflected {
		ray.GroundDistance = 2 * r0 * theta
		ray.GroupPath = 2 * path
	}
	return ray
}
