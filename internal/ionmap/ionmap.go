// Package ionmap is the ionospheric map service. It evaluates monthly
// median foF2 and M(3000)F2 with their decile spread from spherical-harmonic
// coefficient tables over geomagnetic coordinates and local time.
package ionmap

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geomag"
)

// SchemaVersion is the coefficient table format version this build reads.
const SchemaVersion = 1

var (
	ErrInvalidMonth = errors.New("month must be 1..12")
	ErrInvalidKind  = errors.New("unknown map kind")
	ErrBadTable     = errors.New("malformed coefficient table")
)

// Kind selects the mapped ionospheric characteristic.
type Kind int

const (
	FoF2 Kind = iota
	M3000F2
)

var kindNames = [...]string{FoF2: "foF2", M3000F2: "M3000F2"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a table key ("foF2", "M3000F2") case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Triple is a monthly median with its lower and upper decile values.
// Extrapolated is set when the SSN fell outside the table's levels.
type Triple struct {
	Median       float64
	Low          float64
	High         float64
	Extrapolated bool
}

// KindTable holds the coefficients for one characteristic in one month.
// Median has one row per SSN level, each row laid out spatial-major with
// TimeTerms entries per spatial term. LowRatio/HighRatio are diurnal series
// multiplying the median to give the deciles.
type KindTable struct {
	Median    [][]float64 `json:"median"`
	LowRatio  []float64   `json:"low_ratio"`
	HighRatio []float64   `json:"high_ratio"`
}

// MonthTable is one versioned monthly coefficient file.
type MonthTable struct {
	Version   int                   `json:"version"`
	Month     int                   `json:"month"`
	LatOrder  int                   `json:"lat_order"`
	LonOrder  int                   `json:"lon_order"`
	TimeOrder int                   `json:"time_order"`
	Levels    []float64             `json:"ssn_levels"`
	Kinds     map[string]*KindTable `json:"kinds"`
}

// Validate checks version, shape and level ordering.
func (t *MonthTable) Validate() error {
	if t.Version != SchemaVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrBadTable, t.Version, SchemaVersion)
	}
	if t.Month < 1 || t.Month > 12 {
		return fmt.Errorf("%w: %w", ErrBadTable, ErrInvalidMonth)
	}
	if len(t.Levels) == 0 || !sort.Float64sAreSorted(t.Levels) {
		return fmt.Errorf("%w: month %d: SSN levels must be non-empty and ascending", ErrBadTable, t.Month)
	}
	want := SpatialTerms(t.LatOrder, t.LonOrder) * TimeTerms(t.TimeOrder)
	nt := TimeTerms(t.TimeOrder)
	for _, name := range kindNames {
		kt, ok := t.Kinds[name]
		if !ok || kt == nil {
			return fmt.Errorf("%w: month %d: missing %s", ErrBadTable, t.Month, name)
		}
		if len(kt.Median) != len(t.Levels) {
			return fmt.Errorf("%w: month %d %s: %d median rows for %d levels", ErrBadTable, t.Month, name, len(kt.Median), len(t.Levels))
		}
		for i, row := range kt.Median {
			if len(row) != want {
				return fmt.Errorf("%w: month %d %s level %d: %d coefficients, want %d", ErrBadTable, t.Month, name, i, len(row), want)
			}
		}
		if len(kt.LowRatio) != nt || len(kt.HighRatio) != nt {
			return fmt.Errorf("%w: month %d %s: decile series length", ErrBadTable, t.Month, name)
		}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (t *MonthTable) Clone() *MonthTable {
	c := *t
	c.Levels = slices.Clone(t.Levels)
	c.Kinds = make(map[string]*KindTable, len(t.Kinds))
	for name, kt := range t.Kinds {
		if kt == nil {
			c.Kinds[name] = nil
			continue
		}
		rows := make([][]float64, len(kt.Median))
		for i, row := range kt.Median {
			rows[i] = slices.Clone(row)
		}
		c.Kinds[name] = &KindTable{
			Median:    rows,
			LowRatio:  slices.Clone(kt.LowRatio),
			HighRatio: slices.Clone(kt.HighRatio),
		}
	}
	return &c
}

// Map is an immutable set of twelve monthly tables. Safe for concurrent use.
type Map struct {
	months [12]*MonthTable
}

// New validates the tables and builds a Map from copies of them. Every month
// must be present once.
func New(tables []*MonthTable) (*Map, error) {
	m := &Map{}
	for _, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("%w: nil table", ErrBadTable)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if m.months[t.Month-1] != nil {
			return nil, fmt.Errorf("%w: duplicate month %d", ErrBadTable, t.Month)
		}
		m.months[t.Month-1] = t.Clone()
	}
	for i, t := range m.months {
		if t == nil {
			return nil, fmt.Errorf("%w: missing month %d", ErrBadTable, i+1)
		}
	}
	return m, nil
}

// Table returns a copy of the coefficient table for month (1..12).
func (m *Map) Table(month int) (*MonthTable, error) {
	t, err := m.table(month)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (m *Map) table(month int) (*MonthTable, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	return m.months[month-1], nil
}

// Evaluate returns the median and decile values of kind at a geographic
// location for the given month, sunspot number and local time fraction [0,1).
// SSN values outside the table's levels are linearly extrapolated and flagged.
func (m *Map) Evaluate(kind Kind, lat, lon float64, month int, ssn, localTime float64) (Triple, error) {
	t, err := m.table(month)
	if err != nil {
		return Triple{}, err
	}
	if kind < 0 || int(kind) >= len(kindNames) {
		return Triple{}, fmt.Errorf("%w: %d", ErrInvalidKind, int(kind))
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return Triple{}, err
	}
	kt := t.Kinds[kindNames[kind]]

	field := geomag.At(p, 0)
	spatial := spatialBasis(t.LatOrder, t.LonOrder, field.Latitude*math.Pi/180, field.Longitude*math.Pi/180)
	tb := timeBasis(t.TimeOrder, localTime)

	lo, hi, w, extrapolated := bracket(t.Levels, ssn)
	median := evalSeries(kt.Median[lo], spatial, tb)
	if hi != lo {
		median += w * (evalSeries(kt.Median[hi], spatial, tb) - median)
	}
	median = math.Max(median, minValue[kind])

	lowR := math.Min(1, floats.Dot(kt.LowRatio, tb))
	highR := math.Max(1, floats.Dot(kt.HighRatio, tb))

	return Triple{
		Median:       median,
		Low:          median * math.Max(lowR, 0.1),
		High:         median * highR,
		Extrapolated: extrapolated,
	}, nil
}

// minValue keeps extrapolated medians physical.
var minValue = [...]float64{FoF2: 0.5, M3000F2: 1.5}

// bracket returns the level indices to interpolate between, the weight of
// the upper one and whether ssn lies outside the levels.
func bracket(levels []float64, ssn float64) (lo, hi int, w float64, extrapolated bool) {
	n := len(levels)
	if n == 1 {
		return 0, 0, 0, ssn != levels[0]
	}
	extrapolated = ssn < levels[0] || ssn > levels[n-1]
	i := sort.SearchFloat64s(levels, ssn)
	switch {
	case i <= 0:
		lo, hi = 0, 1
	case i >= n:
		lo, hi = n-2, n-1
	default:
		lo, hi = i-1, i
	}
	w = (ssn - levels[lo]) / (levels[hi] - levels[lo])
	return lo, hi, w, extrapolated
}
