package ionmap

import "math"

// =============================================================================
// Built-in coefficient set
// =============================================================================
//
// The built-in tables are generated from a separable climatology: a zonal
// Legendre latitude shape with a weak seasonal hemispheric term and a small
// longitude term, times a diurnal harmonic series, scaled by an SSN-dependent
// base value. Tables on disk (see LoadDir) replace them completely.

// Levels at which the built-in tables are defined.
var builtinLevels = []float64{0, 100}

type climatology struct {
	base      [2]float64 // median scale at SSN 0 and 100
	zonal     map[int]float64
	seasonal  float64 // P1 amplitude, multiplied by cos of the month phase
	longitude float64 // P1^1 cos(λ) amplitude
	amps      []float64
	phases    []float64
	lowRatio  []float64
	highRatio []float64
}

var builtinClimatology = map[Kind]climatology{
	FoF2: {
		base:      [2]float64{6.3, 9.8},
		zonal:     map[int]float64{2: -0.25, 4: -0.05},
		seasonal:  0.06,
		longitude: 0.015,
		amps:      []float64{0.37, 0.05, 0},
		phases:    []float64{0.58, 0.6, 0},
		lowRatio:  harmonic(0.85, []float64{0.05}, []float64{0.5}),
		highRatio: harmonic(1.15, []float64{-0.05}, []float64{0.5}),
	},
	M3000F2: {
		base:      [2]float64{3.05, 2.85},
		zonal:     map[int]float64{2: 0.03},
		amps:      []float64{0.07, 0.02, 0},
		phases:    []float64{0.5, 0.25, 0},
		lowRatio:  harmonic(0.95, nil, nil),
		highRatio: harmonic(1.05, nil, nil),
	},
}

// harmonic returns the time-series coefficients of
// mean + Σ amps[k-1]·cos(2πk(T - phases[k-1])), padded to TimeOrder harmonics.
func harmonic(mean float64, amps, phases []float64) []float64 {
	out := make([]float64, TimeTerms(TimeOrder))
	out[0] = mean
	for i, a := range amps {
		k := float64(i + 1)
		out[1+2*i] = a * math.Cos(2*math.Pi*k*phases[i])
		out[2+2*i] = a * math.Sin(2*math.Pi*k*phases[i])
	}
	return out
}

// spatialShape lays the zonal, seasonal and longitude terms out in basis order.
func (c climatology) spatialShape(month int) []float64 {
	shape := make([]float64, SpatialTerms(LatOrder, LonOrder))
	shape[0] = 1
	for n, v := range c.zonal {
		shape[n] += v
	}
	shape[1] += c.seasonal * math.Cos(2*math.Pi*float64(month-1)/12)
	// m=1 block starts after the LatOrder+1 zonal terms; n=1 cos is its first entry
	shape[LatOrder+1] += c.longitude
	return shape
}

func (c climatology) table(month int) *KindTable {
	shape := c.spatialShape(month)
	diurnal := harmonic(1, c.amps, c.phases)
	kt := &KindTable{
		Median:    make([][]float64, len(builtinLevels)),
		LowRatio:  c.lowRatio,
		HighRatio: c.highRatio,
	}
	for li := range builtinLevels {
		row := make([]float64, 0, len(shape)*len(diurnal))
		for _, s := range shape {
			for _, d := range diurnal {
				row = append(row, c.base[li]*s*d)
			}
		}
		kt.Median[li] = row
	}
	return kt
}

// BuiltinTable generates the built-in table for one month.
func BuiltinTable(month int) *MonthTable {
	t := &MonthTable{
		Version:   SchemaVersion,
		Month:     month,
		LatOrder:  LatOrder,
		LonOrder:  LonOrder,
		TimeOrder: TimeOrder,
		Levels:    append([]float64(nil), builtinLevels...),
		Kinds:     make(map[string]*KindTable, len(kindNames)),
	}
	for kind, c := range builtinClimatology {
		t.Kinds[kind.String()] = c.table(month)
	}
	return t
}

// Builtin returns all twelve built-in monthly tables.
func Builtin() []*MonthTable {
	tables := make([]*MonthTable, 0, 12)
	for m := 1; m <= 12; m++ {
		tables = append(tables, BuiltinTable(m))
	}
	return tables
}
