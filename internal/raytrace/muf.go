package raytrace

import (
	"math"
	"sync"

	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
)

// MUF search limits.
const (
	DefaultMaxHops   = 8
	MaxMufIterations = 12
	MufTolerance     = 0.005 // MHz

	// Fraction of the MUF never exceeded by the FOT.
	FotFraction = 0.85
)

// Refinement is the outcome of a bounded iterative estimate.
type Refinement struct {
	Value      float64
	Converged  bool
	Iterations int
}

// MufInfo is the MUF of one layer over the path.
type MufInfo struct {
	Layer         ionosphere.Layer
	Feasible      bool
	Muf           float64 // MHz
	Fot           float64 // MHz
	Hpf           float64 // MHz
	SigmaLow      float64 // lower decile deviation, MHz
	SigmaHigh     float64 // upper decile deviation, MHz
	Hops          int
	Elevation     float64 // radians
	VirtualHeight float64 // km
	Converged     bool
	Iterations    int
}

// CircuitMuf combines the layer MUFs of every control point.
type CircuitMuf struct {
	MufInfo
	Layers      [ionosphere.NumLayers]MufInfo
	Controlling [ionosphere.NumLayers]int // profile index setting each layer's MUF, -1 if none
}

// firstEstimate applies the flat-Earth secant law for a mirror at h.
func firstEstimate(fc, hopDistance, h float64) float64 {
	tanPhi := (hopDistance / 2) / h
	return fc * math.Sqrt(1+tanPhi*tanPhi)
}

// minHops returns the smallest hop count whose mirror geometry at h keeps
// the elevation at or above minElevation, or 0 when maxHops is not enough.
func minHops(distance, h, minElevation float64, maxHops int) int {
	for n := 1; n <= maxHops; n++ {
		if HopElevation(distance/float64(n), h) >= minElevation {
			return n
		}
	}
	return 0
}

// decileSpread returns the fractional lower and upper MUF deviations.
func decileSpread(p *ionosphere.Profile, l ionosphere.Layer) (low, high float64) {
	if l != ionosphere.F2 {
		return ionosphere.FixedSpread, ionosphere.FixedSpread
	}
	cp := p.ControlPoint
	ratio := func(v, m float64) float64 {
		if m <= 0 {
			return 0
		}
		return math.Abs(v/m - 1)
	}
	lf, hf := ratio(cp.FoF2.Low, cp.FoF2.Median), ratio(cp.FoF2.High, cp.FoF2.Median)
	lm, hm := ratio(cp.M3000.Low, cp.M3000.Median), ratio(cp.M3000.High, cp.M3000.Median)
	return math.Hypot(lf, lm), math.Hypot(hf, hm)
}

func (m *MufInfo) applySpread(low, high float64) {
	m.SigmaLow = m.Muf * low
	m.SigmaHigh = m.Muf * high
	m.Fot = m.Muf * math.Min(FotFraction, 1-low)
	m.Hpf = m.Muf * (1 + high)
}

// ComputeLayerMuf returns the highest frequency layer l supports over the
// distance with the fewest feasible hops.
func ComputeLayerMuf(p *ionosphere.Profile, l ionosphere.Layer, distance, minElevation float64) MufInfo {
	info := MufInfo{Layer: l}
	seg, ok := p.Segment(l)
	if !ok || distance <= 0 {
		return info
	}
	fc := seg.CriticalFrequency

	if l == ionosphere.E {
		n := minHops(distance, seg.PeakHeight, minElevation, DefaultMaxHops)
		if n == 0 {
			return info
		}
		beta := HopElevation(distance/float64(n), seg.PeakHeight)
		phi := IncidenceAngle(beta, seg.PeakHeight)
		info.Feasible = true
		info.Muf = fc / math.Cos(phi)
		info.Hops = n
		info.Elevation = beta
		info.VirtualHeight = seg.PeakHeight
		info.Converged = true
	} else {
		n := minHops(distance, seg.PeakHeight, minElevation, DefaultMaxHops)
		if n == 0 {
			return info
		}
		for ; n <= DefaultMaxHops; n++ {
			target := distance / float64(n)
			ref, skip, fits := refineMuf(p, l, fc, target, seg.PeakHeight, minElevation, MaxMufIterations)
			if !fits {
				continue
			}
			info.Feasible = true
			info.Muf = ref.Value
			info.Converged = ref.Converged
			info.Iterations = ref.Iterations
			info.Hops = n
			info.Elevation = skip.Elevation
			info.VirtualHeight = skip.VirtualHeight()
			break
		}
		if !info.Feasible {
			return info
		}
	}

	low, high := decileSpread(p, l)
	info.applySpread(low, high)
	return info
}

// secantLaw re-solves the secant law for target using the effective mirror
// height implied by a skip distance observed at f.
func secantLaw(fc, f, skip, target float64) float64 {
	excess := math.Sqrt(math.Max(0, f*f/(fc*fc)-1))
	if excess <= 0 || skip <= 0 {
		return f * 1.05
	}
	hEff := skip / (2 * excess)
	tanPhi := target / (2 * hEff)
	return fc * math.Sqrt(1+tanPhi*tanPhi)
}

// refineMuf solves skip(f) = target: a secant-law step first, then secant
// iteration on skip(f) - target, falling back to the secant law whenever
// the secant step leaves (fc, 2f]. At most maxIter steps are taken; without
// convergence the value is the last estimate the layer reflected. It reports
// whether the layer's longest hop at the result still spans target.
func refineMuf(p *ionosphere.Profile, l ionosphere.Layer, fc, target, h0, minElevation float64, maxIter int) (Refinement, Ray, bool) {
	f := firstEstimate(fc, target, h0)
	ref := Refinement{Value: f}
	var stable skipInfo
	var prevF, prevG float64
	havePrev := false

	for it := 1; it <= maxIter; it++ {
		ref.Iterations = it
		s := layerSkip(p, l, f, minElevation)
		if !s.ok {
			// every ray penetrates: back off towards the last good estimate
			if havePrev {
				f = 0.5 * (f + prevF)
			} else {
				f = 0.5 * (f + fc)
			}
			continue
		}
		ref.Value, stable = f, s

		g := s.skip.GroundDistance - target
		next := math.NaN()
		if havePrev && g != prevG {
			next = f - g*(f-prevF)/(g-prevG)
		}
		if math.IsNaN(next) || next <= fc || next > 2*f {
			next = secantLaw(fc, f, s.skip.GroundDistance, target)
		}
		prevF, prevG, havePrev = f, g, true
		if math.IsNaN(next) || math.IsInf(next, 0) {
			break
		}
		if math.Abs(next-f) < MufTolerance {
			if s2 := layerSkip(p, l, next, minElevation); s2.ok {
				ref.Value, stable = next, s2
			}
			ref.Converged = true
			break
		}
		f = next
	}

	if !stable.ok {
		return ref, Ray{}, false
	}
	return ref, stable.skip, stable.maxRange >= target*(1-1e-3)
}

// ComputeCircuitMuf evaluates every layer at every profile. Each layer's
// circuit value is its lowest MUF over the profiles (all must support it);
// the circuit MUF is the highest feasible layer value.
func ComputeCircuitMuf(profiles []*ionosphere.Profile, distance, minElevation float64) CircuitMuf {
	per := make([][ionosphere.NumLayers]MufInfo, len(profiles))

	var wg sync.WaitGroup
	for i, p := range profiles {
		for _, l := range ionosphere.Layers {
			wg.Add(1)
			go func(i int, p *ionosphere.Profile, l ionosphere.Layer) {
				defer wg.Done()
				per[i][l] = ComputeLayerMuf(p, l, distance, minElevation)
			}(i, p, l)
		}
	}
	wg.Wait()

	c := CircuitMuf{}
	for _, l := range ionosphere.Layers {
		c.Controlling[l] = -1
		c.Layers[l] = MufInfo{Layer: l}
		feasible := len(profiles) > 0
		best := -1
		for i := range profiles {
			m := per[i][l]
			if !m.Feasible {
				feasible = false
				break
			}
			if best < 0 || m.Muf < per[best][l].Muf {
				best = i
			}
		}
		if !feasible || best < 0 {
			continue
		}
		c.Layers[l] = per[best][l]
		c.Controlling[l] = best
		if !c.Feasible || c.Layers[l].Muf > c.Muf {
			c.MufInfo = c.Layers[l]
		}
	}
	return c
}
