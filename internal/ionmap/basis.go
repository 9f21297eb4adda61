package ionmap

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Series order used by every coefficient table.
const (
	LatOrder  = 6 // maximum Legendre degree n
	LonOrder  = 2 // maximum Legendre order m
	TimeOrder = 3 // number of diurnal harmonics
)

// SpatialTerms returns the number of spatial basis functions for the given
// degree/order truncation.
func SpatialTerms(n, m int) int {
	count := 0
	for mm := 0; mm <= m; mm++ {
		for nn := mm; nn <= n; nn++ {
			if mm == 0 {
				count++
			} else {
				count += 2
			}
		}
	}
	return count
}

// TimeTerms returns the number of time basis functions for h harmonics.
func TimeTerms(h int) int { return 1 + 2*h }

// legendre returns P[m][n](x), the unnormalised associated Legendre
// functions without the Condon-Shortley phase, for n <= nMax, m <= mMax.
func legendre(nMax, mMax int, x float64) [][]float64 {
	p := make([][]float64, mMax+1)
	s := math.Sqrt(math.Max(0, 1-x*x))
	pmm := 1.0
	for m := 0; m <= mMax; m++ {
		p[m] = make([]float64, nMax+1)
		if m > 0 {
			pmm *= float64(2*m-1) * s
		}
		if m > nMax {
			continue
		}
		p[m][m] = pmm
		if m+1 <= nMax {
			p[m][m+1] = x * float64(2*m+1) * pmm
		}
		for n := m + 2; n <= nMax; n++ {
			p[m][n] = (float64(2*n-1)*x*p[m][n-1] - float64(n+m-1)*p[m][n-2]) / float64(n-m)
		}
	}
	return p
}

// spatialBasis evaluates the spatial functions at geomagnetic latitude and
// longitude (radians). Term order: m ascending, then n ascending, cos before sin.
func spatialBasis(nMax, mMax int, mlat, mlon float64) []float64 {
	p := legendre(nMax, mMax, math.Sin(mlat))
	out := make([]float64, 0, SpatialTerms(nMax, mMax))
	for m := 0; m <= mMax; m++ {
		c, s := math.Cos(float64(m)*mlon), math.Sin(float64(m)*mlon)
		for n := m; n <= nMax; n++ {
			if m == 0 {
				out = append(out, p[0][n])
				continue
			}
			out = append(out, p[m][n]*c, p[m][n]*s)
		}
	}
	return out
}

// timeBasis evaluates 1, cos(2πkT), sin(2πkT) for k = 1..h.
func timeBasis(h int, t float64) []float64 {
	out := make([]float64, 0, TimeTerms(h))
	out = append(out, 1)
	for k := 1; k <= h; k++ {
		a := 2 * math.Pi * float64(k) * t
		out = append(out, math.Cos(a), math.Sin(a))
	}
	return out
}

// evalSeries computes Σ_s Σ_t c[s*nt+t]·S[s]·T[t].
func evalSeries(coeffs, spatial, tb []float64) float64 {
	nt := len(tb)
	sum := 0.0
	for s, sv := range spatial {
		sum += sv * floats.Dot(coeffs[s*nt:(s+1)*nt], tb)
	}
	return sum
}
