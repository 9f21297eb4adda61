package ionosphere

import (
	"math"
)

// Piece is a height range over which one segment dominates the composite
// profile. Segment is -1 for electron-free gaps.
type Piece struct {
	Segment int
	Lower   float64 // km
	Upper   float64 // km
}

// Gap reports whether the piece carries no ionisation.
func (p Piece) Gap() bool { return p.Segment < 0 }

// Oblique-frequency table grid: 0..90 degrees in 1 degree steps.
const obliqueSteps = 90

// ObliqueAngles are the elevation angles (radians) of the oblique table.
var ObliqueAngles = func() []float64 {
	a := make([]float64, obliqueSteps+1)
	for i := range a {
		a[i] = float64(i) * math.Pi / 2 / obliqueSteps
	}
	return a
}()

// Profile is an immutable composite QP profile with precomputed
// penetration frequencies and oblique reflection limits.
type Profile struct {
	ControlPoint ControlPoint
	Segments     []Segment
	Pieces       []Piece
	// Penetration is the vertical frequency above which a ray from the
	// ground passes every piece below the layer, MHz.
	Penetration [NumLayers]float64

	index   [NumLayers]int
	base    [NumLayers]float64 // bottom of the layer's first piece, km
	oblique [NumLayers][]float64
}

// compositeStep is the scan resolution used to find dominance changes, km.
const compositeStep = 0.5

func newProfile(cp ControlPoint, segs []Segment) *Profile {
	p := &Profile{ControlPoint: cp, Segments: segs}
	for i := range p.index {
		p.index[i] = -1
	}
	for i, s := range segs {
		p.index[s.Layer] = i
	}
	p.buildPieces()
	p.buildPenetration()
	p.buildOblique()
	return p
}

// dominant returns the index of the segment with the largest fN² at h, or -1.
func (p *Profile) dominant(h float64) int {
	best, bestV := -1, 0.0
	for i, s := range p.Segments {
		if v := s.PlasmaFrequency2(h); v > bestV {
			best, bestV = i, v
		}
	}
	return best
}

// Top returns the upper limit of the modelled profile, km.
func (p *Profile) Top() float64 {
	if i := p.index[F2]; i >= 0 {
		return p.Segments[i].PeakHeight
	}
	top := 0.0
	for _, s := range p.Segments {
		top = math.Max(top, s.Top())
	}
	return top
}

func (p *Profile) buildPieces() {
	bottom := math.Inf(1)
	for _, s := range p.Segments {
		bottom = math.Min(bottom, s.Base())
	}
	top := p.Top()

	pieces := []Piece{{Segment: -1, Lower: 0, Upper: bottom}}
	cur := p.dominant(bottom + 1e-9)
	start := bottom
	for h := bottom + compositeStep; ; h += compositeStep {
		if h > top {
			h = top
		}
		d := p.dominant(h - 1e-9)
		if d != cur {
			lo, hi := h-compositeStep, h
			if lo < start {
				lo = start
			}
			for i := 0; i < 40; i++ {
				mid := (lo + hi) / 2
				if p.dominant(mid) == cur {
					lo = mid
				} else {
					hi = mid
				}
			}
			pieces = append(pieces, Piece{Segment: cur, Lower: start, Upper: hi})
			start, cur = hi, d
		}
		if h >= top {
			break
		}
	}
	if top > start {
		pieces = append(pieces, Piece{Segment: cur, Lower: start, Upper: top})
	}
	p.Pieces = pieces
}

// pieceMax2 returns the largest fN² inside a piece.
func (p *Profile) pieceMax2(pc Piece) float64 {
	if pc.Gap() {
		return 0
	}
	s := p.Segments[pc.Segment]
	if s.PeakHeight >= pc.Lower && s.PeakHeight <= pc.Upper {
		return s.CriticalFrequency * s.CriticalFrequency
	}
	return math.Max(s.PlasmaFrequency2(pc.Lower), s.PlasmaFrequency2(pc.Upper))
}

func (p *Profile) buildPenetration() {
	for _, l := range Layers {
		si := p.index[l]
		if si < 0 {
			continue
		}
		max2 := 0.0
		for _, pc := range p.Pieces {
			if pc.Segment == si {
				p.base[l] = pc.Lower
				break
			}
			max2 = math.Max(max2, p.pieceMax2(pc))
		}
		p.Penetration[l] = math.Sqrt(max2)
	}
}

// Reaches reports whether a ray of frequency f (MHz) launched at elevation
// beta (radians) can climb past everything below layer l. A false result
// means the ray turns back lower down: the equivalent vertical frequency
// f·cos(i) at the layer base, where i is the incidence angle, does not
// exceed the penetration frequency, and i only grows with descending height.
func (p *Profile) Reaches(l Layer, f, beta float64) bool {
	if !p.Has(l) {
		return false
	}
	pen := p.Penetration[l]
	if pen == 0 {
		return true
	}
	s := R0 * math.Cos(beta) / (R0 + p.base[l])
	cosI := math.Sqrt(math.Max(0, 1-s*s))
	return f*cosI >= pen
}

// PieceQuadratic returns the ray quadratic valid inside piece i.
func (p *Profile) PieceQuadratic(i int, f, gamma float64) Quadratic {
	pc := p.Pieces[i]
	if pc.Gap() {
		return FreeSpace(gamma)
	}
	return p.Segments[pc.Segment].Quadratic(f, gamma)
}

// reflectsIn reports whether a ray with the given Bouguer constant turns
// inside any piece of segment si at frequency f.
func (p *Profile) reflectsIn(si int, f, gamma float64) bool {
	for i, pc := range p.Pieces {
		if pc.Segment != si {
			continue
		}
		q := p.PieceQuadratic(i, f, gamma)
		if q.MinOn(R0+pc.Lower, R0+pc.Upper) <= 0 {
			return true
		}
	}
	return false
}

func (p *Profile) buildOblique() {
	for _, l := range Layers {
		si := p.index[l]
		if si < 0 {
			continue
		}
		low := math.Inf(1)
		for _, pc := range p.Pieces {
			if pc.Segment == si {
				low = math.Min(low, pc.Lower)
			}
		}
		if math.IsInf(low, 1) {
			// segment fully shadowed by its neighbours
			p.oblique[l] = make([]float64, len(ObliqueAngles))
			continue
		}
		fc := p.Segments[si].CriticalFrequency
		rLow := R0 + low
		table := make([]float64, len(ObliqueAngles))
		for j, beta := range ObliqueAngles {
			gamma := R0 * math.Cos(beta)
			lo := fc * 0.5
			hi := fc / math.Sqrt(math.Max(1e-9, 1-gamma*gamma/(rLow*rLow)))
			if !p.reflectsIn(si, lo, gamma) {
				continue
			}
			for it := 0; it < 50; it++ {
				mid := (lo + hi) / 2
				if p.reflectsIn(si, mid, gamma) {
					lo = mid
				} else {
					hi = mid
				}
			}
			table[j] = lo
		}
		p.oblique[l] = table
	}
}

// Has reports whether layer l is part of the profile.
func (p *Profile) Has(l Layer) bool { return p.index[l] >= 0 }

// Segment returns the segment for layer l.
func (p *Profile) Segment(l Layer) (Segment, bool) {
	if i := p.index[l]; i >= 0 {
		return p.Segments[i], true
	}
	return Segment{}, false
}

// SegmentLayer maps a piece's segment index to its layer.
func (p *Profile) SegmentLayer(si int) Layer { return p.Segments[si].Layer }

// PlasmaFrequency returns the composite plasma frequency at h, MHz.
func (p *Profile) PlasmaFrequency(h float64) float64 {
	if d := p.dominant(h); d >= 0 {
		return math.Sqrt(p.Segments[d].PlasmaFrequency2(h))
	}
	return 0
}

// ObliqueFrequency returns the highest frequency layer l reflects at
// elevation beta (radians), interpolated on the oblique grid. Zero when the
// layer is absent.
func (p *Profile) ObliqueFrequency(l Layer, beta float64) float64 {
	t := p.oblique[l]
	if t == nil {
		return 0
	}
	x := beta / (math.Pi / 2) * obliqueSteps
	if x <= 0 {
		return t[0]
	}
	if x >= obliqueSteps {
		return t[obliqueSteps]
	}
	i := int(x)
	w := x - float64(i)
	return t[i] + w*(t[i+1]-t[i])
}
