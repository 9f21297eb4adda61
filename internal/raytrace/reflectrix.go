package raytrace

import (
	"math"

	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
)

// Elevation sweep.
const (
	SweepSteps        = 180
	MaxSweepElevation = 89.5 * math.Pi / 180

	// Oblique-table margin before a ray is assumed to escape.
	obliqueMargin = 1.02
)

// DefaultMinElevation is the lowest usable take-off angle, radians.
const DefaultMinElevation = 3 * math.Pi / 180

// SweepAngles returns the fixed elevation grid from minElevation to
// MaxSweepElevation.
func SweepAngles(minElevation float64) []float64 {
	lo := math.Max(minElevation, 0.1*math.Pi/180)
	if lo >= MaxSweepElevation {
		return []float64{MaxSweepElevation}
	}
	step := (MaxSweepElevation - lo) / SweepSteps
	out := make([]float64, SweepSteps+1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// Sample is one swept ray with its grid index.
type Sample struct {
	Step int
	Ray
}

// Reflectrix is the elevation-versus-distance curve of one layer at one
// frequency: the swept rays that layer reflects, in ascending elevation.
type Reflectrix struct {
	Layer        ionosphere.Layer
	Frequency    float64
	MinElevation float64
	Samples      []Sample

	profile *ionosphere.Profile
}

// Profile returns the profile the curve was traced through.
func (r Reflectrix) Profile() *ionosphere.Profile { return r.profile }

// escapes reports whether f exceeds every layer's oblique limit at beta.
func escapes(p *ionosphere.Profile, f, beta float64) bool {
	for _, l := range ionosphere.Layers {
		if p.Has(l) && f <= obliqueMargin*p.ObliqueFrequency(l, beta) {
			return false
		}
	}
	return true
}

// sweep traces the elevation grid, skipping angles the oblique table shows
// cannot be reflected.
func sweep(p *ionosphere.Profile, f, minElevation float64) []Sample {
	angles := SweepAngles(minElevation)
	out := make([]Sample, 0, len(angles))
	for i, beta := range angles {
		if escapes(p, f, beta) {
			continue
		}
		ray := Trace(p, f, beta)
		if ray.Reflected {
			out = append(out, Sample{Step: i, Ray: ray})
		}
	}
	return out
}

// ComputeReflectrix sweeps the elevation grid at frequency f and returns one
// curve per layer present in the profile, bottom layer first.
func ComputeReflectrix(p *ionosphere.Profile, f, minElevation float64) []Reflectrix {
	samples := sweep(p, f, minElevation)
	var out []Reflectrix
	for _, l := range ionosphere.Layers {
		if !p.Has(l) {
			continue
		}
		r := Reflectrix{Layer: l, Frequency: f, MinElevation: minElevation, profile: p}
		for _, s := range samples {
			if s.Layer == l {
				r.Samples = append(r.Samples, s)
			}
		}
		out = append(out, r)
	}
	return out
}

// skipInfo summarises a layer's curve at one frequency.
type skipInfo struct {
	skip     Ray     // shortest-range ray
	maxRange float64 // longest one-hop range
	ok       bool
}

// layerSkip finds the skip distance of layer l at f, refining the minimum
// between grid neighbours with a golden-section search.
func layerSkip(p *ionosphere.Profile, l ionosphere.Layer, f, minElevation float64) skipInfo {
	angles := SweepAngles(minElevation)
	var rays []Sample
	for i, beta := range angles {
		// Screened angles turn back below l; no trace needed.
		if !p.Reaches(l, f, beta) || escapes(p, f, beta) {
			continue
		}
		if ray := Trace(p, f, beta); ray.Reflected && ray.Layer == l {
			rays = append(rays, Sample{Step: i, Ray: ray})
		}
	}
	if len(rays) == 0 {
		return skipInfo{}
	}

	info := skipInfo{ok: true}
	best := 0
	for i, s := range rays {
		if s.GroundDistance < rays[best].GroundDistance {
			best = i
		}
		info.maxRange = math.Max(info.maxRange, s.GroundDistance)
	}
	info.skip = rays[best].Ray

	step := rays[best].Step
	if step == 0 || step == len(angles)-1 {
		return info
	}
	lo, hi := angles[step-1], angles[step+1]
	const phi = 0.6180339887498949
	distance := func(beta float64) float64 {
		if !p.Reaches(l, f, beta) {
			return math.Inf(1)
		}
		r := Trace(p, f, beta)
		if !r.Reflected || r.Layer != l {
			return math.Inf(1)
		}
		return r.GroundDistance
	}
	a := hi - phi*(hi-lo)
	b := lo + phi*(hi-lo)
	da, db := distance(a), distance(b)
	for it := 0; it < 30; it++ {
		if da < db {
			hi, b, db = b, a, da
			a = hi - phi*(hi-lo)
			da = distance(a)
		} else {
			lo, a, da = a, b, db
			b = lo + phi*(hi-lo)
			db = distance(b)
		}
	}
	if r := Trace(p, f, (lo+hi)/2); r.Reflected && r.Layer == l && r.GroundDistance < info.skip.GroundDistance {
		info.skip = r
	}
	return info
}
