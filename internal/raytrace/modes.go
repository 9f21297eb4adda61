package raytrace

import (
	"fmt"
	"math"
	"sort"

	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
)

// RayKind distinguishes the branches of the reflectrix.
type RayKind int

const (
	Normal   RayKind = iota // low ray, range falls with elevation
	Pedersen                // high ray, range rises with elevation
	Vertical                // near-vertical incidence on very short paths
)

var kindNames = [...]string{Normal: "normal", Pedersen: "pedersen", Vertical: "vertical"}

func (k RayKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("RayKind(%d)", int(k))
	}
	return kindNames[k]
}

// Mode is one propagation path between the terminals.
type Mode struct {
	Layer            ionosphere.Layer
	Hops             int
	Elevation        float64 // radians
	VirtualHeight    float64 // km
	ReflectionHeight float64 // km
	GroundDistance   float64 // per hop, km
	GroupPath        float64 // per hop, km
	Kind             RayKind
	OverMuf          bool
	Frequency        float64 // MHz
}

// ElevationDeg returns the take-off angle in degrees.
func (m Mode) ElevationDeg() float64 { return m.Elevation * 180 / math.Pi }

// TotalGroupPath returns the group path over all hops, km.
func (m Mode) TotalGroupPath() float64 { return m.GroupPath * float64(m.Hops) }

// SolutionKind tags how many rays of a layer land at the target range.
type SolutionKind int

const (
	NoSolution SolutionKind = iota
	Single
	Pair
)

// Solution holds the zero, one or two (normal and Pedersen) rays found for
// one layer and hop count.
type Solution struct {
	Kind  SolutionKind
	modes [2]Mode
}

// Modes returns the solution's rays, low ray first.
func (s Solution) Modes() []Mode {
	switch s.Kind {
	case Single:
		return []Mode{s.modes[0]}
	case Pair:
		return []Mode{s.modes[0], s.modes[1]}
	}
	return nil
}

// Refinement limits for root polishing.
const (
	bisectIterations = 40
	rangeTolerance   = 0.05 // km
)

// VerticalPathKm is the path length below which vertical incidence is used.
const VerticalPathKm = 10.0

// Solve finds the elevation angles on r whose one-hop range equals target.
func Solve(r Reflectrix, target float64, hops int) Solution {
	angles := SweepAngles(r.MinElevation)
	var normal, pedersen *Mode

	for i := 1; i < len(r.Samples); i++ {
		a, b := r.Samples[i-1], r.Samples[i]
		if b.Step != a.Step+1 {
			continue
		}
		ga, gb := a.GroundDistance-target, b.GroundDistance-target
		if ga*gb > 0 || (ga == 0 && gb == 0) {
			continue
		}
		kind := Normal
		if b.GroundDistance > a.GroundDistance {
			kind = Pedersen
		}
		if (kind == Normal && normal != nil) || (kind == Pedersen && pedersen != nil) {
			continue
		}
		ray, ok := a.Ray, true
		if ga != 0 {
			ray, ok = bisect(r, angles[a.Step], angles[b.Step], ga, target)
		}
		if !ok {
			continue
		}
		m := modeFromRay(ray, hops, kind)
		if kind == Normal {
			normal = &m
		} else {
			pedersen = &m
		}
	}

	switch {
	case normal != nil && pedersen != nil:
		return Solution{Kind: Pair, modes: [2]Mode{*normal, *pedersen}}
	case normal != nil:
		return Solution{Kind: Single, modes: [2]Mode{*normal}}
	case pedersen != nil:
		return Solution{Kind: Single, modes: [2]Mode{*pedersen}}
	}
	return Solution{}
}

// bisect refines the elevation between lo and hi where range crosses target.
func bisect(r Reflectrix, lo, hi, glo, target float64) (Ray, bool) {
	var best Ray
	for it := 0; it < bisectIterations; it++ {
		mid := (lo + hi) / 2
		ray := Trace(r.profile, r.Frequency, mid)
		if !ray.Reflected || ray.Layer != r.Layer {
			return Ray{}, false
		}
		best = ray
		g := ray.GroundDistance - target
		if math.Abs(g) < rangeTolerance {
			break
		}
		if (g < 0) == (glo < 0) {
			lo, glo = mid, g
		} else {
			hi = mid
		}
	}
	return best, best.Reflected
}

func modeFromRay(ray Ray, hops int, kind RayKind) Mode {
	return Mode{
		Layer:            ray.Layer,
		Hops:             hops,
		Elevation:        ray.Elevation,
		VirtualHeight:    ray.VirtualHeight(),
		ReflectionHeight: ray.ReflectionHeight,
		GroundDistance:   ray.GroundDistance,
		GroupPath:        ray.GroupPath,
		Kind:             kind,
		Frequency:        ray.Frequency,
	}
}

// verticalModes handles paths too short for the elevation sweep: the ray
// goes straight up and the take-off angle follows from the virtual height.
func verticalModes(rs []Reflectrix, distance float64) []Mode {
	if len(rs) == 0 {
		return nil
	}
	p, f := rs[0].profile, rs[0].Frequency
	ray := Trace(p, f, math.Pi/2)
	if !ray.Reflected {
		return nil
	}
	for _, r := range rs {
		if r.Layer != ray.Layer {
			continue
		}
		h := ray.GroupPath / 2
		return []Mode{{
			Layer:            ray.Layer,
			Hops:             1,
			Elevation:        math.Atan2(2*h, distance),
			VirtualHeight:    h,
			ReflectionHeight: ray.ReflectionHeight,
			GroundDistance:   distance,
			GroupPath:        math.Sqrt(4*h*h + distance*distance),
			Kind:             Vertical,
			Frequency:        f,
		}}
	}
	return nil
}

// FindModes returns every mode landing at distance with up to maxHops hops,
// ordered by hop count, then layer, then elevation.
func FindModes(rs []Reflectrix, distance float64, maxHops int) []Mode {
	if distance < VerticalPathKm {
		return verticalModes(rs, distance)
	}
	var modes []Mode
	for n := 1; n <= maxHops; n++ {
		target := distance / float64(n)
		for _, r := range rs {
			modes = append(modes, Solve(r, target, n).Modes()...)
		}
	}
	sort.SliceStable(modes, func(i, j int) bool {
		a, b := modes[i], modes[j]
		if a.Hops != b.Hops {
			return a.Hops < b.Hops
		}
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		return a.Elevation < b.Elevation
	})
	return modes
}
