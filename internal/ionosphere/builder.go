package ionosphere

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geomag"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
	"github.com/KI7MT/ki7mt-hf-predict/internal/sun"
)

// ErrNoLayers is returned when every layer at a control point is below the
// critical-frequency floor.
var ErrNoLayers = errors.New("no ionospheric layer above floor")

// Fixed layer geometry.
const (
	EPeakHeight     = 110.0
	ESemiThickness  = 20.0
	F1PeakHeight    = 200.0
	F1ThicknessRate = 0.25 // ymF1 / hmF1

	// Height at which the geomagnetic field is evaluated for absorption.
	FieldHeight = 100.0

	// Default floor below which a layer is omitted, MHz.
	DefaultMinCriticalFrequency = 0.1

	// E and F1 critical frequency decile spread.
	FixedSpread = 0.10
)

// Builder turns map output plus solar and geomagnetic inputs into control
// points and profiles. The zero value is not usable; see NewBuilder.
type Builder struct {
	Map                  *ionmap.Map
	MinCriticalFrequency float64
}

// NewBuilder returns a Builder reading m with the default floor.
func NewBuilder(m *ionmap.Map) *Builder {
	return &Builder{Map: m, MinCriticalFrequency: DefaultMinCriticalFrequency}
}

// zenithTime places t's UTC clock time on the 15th of month when t lies in
// another month, so the solar geometry matches the requested month.
func zenithTime(t time.Time, month int) time.Time {
	t = t.UTC()
	if int(t.Month()) == month {
		return t
	}
	return time.Date(t.Year(), time.Month(month), 15, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// ControlPoint samples the ionosphere at p.
func (b *Builder) ControlPoint(p geo.Point, t time.Time, month int, ssn float64) (ControlPoint, error) {
	if err := p.Validate(); err != nil {
		return ControlPoint{}, err
	}
	if month < 1 || month > 12 {
		return ControlPoint{}, fmt.Errorf("%w: %d", ionmap.ErrInvalidMonth, month)
	}
	st := zenithTime(t, month)
	cp := ControlPoint{
		Location:    p,
		Time:        t.UTC(),
		Month:       month,
		SSN:         ssn,
		ZenithAngle: sun.ZenithAngle(p, st),
		LocalTime:   sun.LocalTimeFraction(p.Lon, st),
		Field:       geomag.At(p, FieldHeight),
	}

	var err error
	cp.FoF2, err = b.Map.Evaluate(ionmap.FoF2, p.Lat, p.Lon, month, ssn, cp.LocalTime)
	if err != nil {
		return ControlPoint{}, fmt.Errorf("foF2 at %s: %w", p, err)
	}
	cp.M3000, err = b.Map.Evaluate(ionmap.M3000F2, p.Lat, p.Lon, month, ssn, cp.LocalTime)
	if err != nil {
		return ControlPoint{}, fmt.Errorf("M3000F2 at %s: %w", p, err)
	}
	cp.Extrapolated = cp.FoF2.Extrapolated || cp.M3000.Extrapolated

	b.sampleLayers(&cp)
	return cp, nil
}

// FoE returns the E-layer critical frequency for a zenith angle (degrees)
// and SSN. Beyond 86° the effective cosine decays exponentially so foE
// falls smoothly through twilight.
func FoE(zenith, ssn float64) float64 {
	const knee = 86.0
	var c float64
	if zenith <= knee {
		c = math.Cos(zenith * math.Pi / 180)
	} else {
		c = math.Cos(knee*math.Pi/180) * math.Exp(-(zenith-knee)/3)
	}
	return 0.9 * math.Pow(math.Max(0, (180+1.44*ssn)*c), 0.25)
}

// FoF1 returns the F1 critical frequency for a sunlit zenith angle.
func FoF1(zenith, ssn float64) float64 {
	c := math.Cos(zenith * math.Pi / 180)
	if c <= 0 {
		return 0
	}
	return (4.3 + 0.01*ssn) * math.Pow(c, 0.2)
}

// F1ZenithLimit is the largest zenith angle (degrees) at which an F1 ledge
// is modelled for the given SSN.
func F1ZenithLimit(ssn float64) float64 {
	return math.Max(60, math.Min(85, 80-0.06*ssn))
}

// HmF2 returns the F2 peak height (km) from M(3000)F2 with the
// Bradley-Dudeney correction for the foF2/foE ratio.
func HmF2(m3000, fof2, foe, ssn float64) float64 {
	dm := 0.096 * (ssn - 25) / 150
	if foe > 0 {
		x := math.Max(1.7, fof2/foe)
		dm += 0.18 / (x - 1.4)
	}
	h := 1490/(m3000+dm) - 176
	return math.Max(200, math.Min(500, h))
}

// F2SemiThickness returns ymF2 (km) for a peak height and M(3000)F2.
func F2SemiThickness(hmf2, m3000 float64) float64 {
	return hmf2 / (1.7 + 0.8*m3000)
}

func (b *Builder) sampleLayers(cp *ControlPoint) {
	floor := b.MinCriticalFrequency

	foe := FoE(cp.ZenithAngle, cp.SSN)
	e := LayerSample{Layer: E, CriticalFrequency: foe, PeakHeight: EPeakHeight, SemiThickness: ESemiThickness}
	e.Present = foe >= floor
	e.Upper, e.Lower = foe*(1+FixedSpread), foe*(1-FixedSpread)

	fof2 := cp.FoF2.Median
	eRef := 0.0
	if e.Present {
		eRef = foe
	}
	hm := HmF2(cp.M3000.Median, fof2, eRef, cp.SSN)
	ym := F2SemiThickness(hm, cp.M3000.Median)
	minBase := EPeakHeight + ESemiThickness/2
	if hm-ym < minBase {
		ym = hm - minBase
	}
	f2 := LayerSample{
		Layer:             F2,
		Present:           fof2 >= floor,
		CriticalFrequency: fof2,
		PeakHeight:        hm,
		SemiThickness:     ym,
		Upper:             cp.FoF2.High,
		Lower:             cp.FoF2.Low,
	}

	f1 := LayerSample{Layer: F1}
	if cp.ZenithAngle <= F1ZenithLimit(cp.SSN) {
		fof1 := FoF1(cp.ZenithAngle, cp.SSN)
		hm1 := math.Min(F1PeakHeight, hm-30)
		f1 = LayerSample{
			Layer:             F1,
			CriticalFrequency: fof1,
			PeakHeight:        hm1,
			SemiThickness:     F1ThicknessRate * hm1,
			Upper:             fof1 * (1 + FixedSpread),
			Lower:             fof1 * (1 - FixedSpread),
		}
		f1.Present = fof1 >= floor && fof1 < 0.95*fof2 && (!e.Present || fof1 > foe)
	}

	cp.Layers = [NumLayers]LayerSample{e, f1, f2}
}

// Build converts a control point into a profile.
func (b *Builder) Build(cp ControlPoint) (*Profile, error) {
	var segs []Segment
	for _, s := range cp.Layers {
		if !s.Present {
			continue
		}
		segs = append(segs, Segment{
			Layer:             s.Layer,
			CriticalFrequency: s.CriticalFrequency,
			PeakHeight:        s.PeakHeight,
			SemiThickness:     s.SemiThickness,
			Topside:           s.Layer != F2,
		})
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNoLayers, cp.Location)
	}
	return newProfile(cp, segs), nil
}
