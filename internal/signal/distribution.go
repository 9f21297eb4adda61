// Package signal computes path loss, signal and noise distributions and the
// resulting circuit reliability for one propagation mode.
package signal

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DecileZ is the standard-normal quantile of the 90th percentile.
var DecileZ = distuv.UnitNormal.Quantile(0.9)

// Distribution is a decibel quantity described by its median and the
// distances from the median to the upper and lower deciles (both >= 0).
type Distribution struct {
	Median float64
	Upper  float64
	Lower  float64
}

// UpperDecile returns the 90th-percentile value.
func (d Distribution) UpperDecile() float64 { return d.Median + d.Upper }

// LowerDecile returns the 10th-percentile value.
func (d Distribution) LowerDecile() float64 { return d.Median - d.Lower }

// ProbabilityAbove returns P(X >= x) treating each half of the distribution
// as normal with sigma = decile / DecileZ.
func (d Distribution) ProbabilityAbove(x float64) float64 {
	margin := d.Median - x
	spread := d.Lower
	if margin < 0 {
		spread = d.Upper
	}
	if spread <= 0 {
		if margin >= 0 {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF(margin / (spread / DecileZ))
}

// Difference returns the distribution of a - b for independent a and b:
// deciles combine as root-sum-square, upper with the other's lower.
func Difference(a, b Distribution) Distribution {
	return Distribution{
		Median: a.Median - b.Median,
		Upper:  math.Hypot(a.Upper, b.Lower),
		Lower:  math.Hypot(a.Lower, b.Upper),
	}
}

// PowerSum adds decibel quantities in the power domain. Medians and each
// decile are summed separately.
func PowerSum(ds ...Distribution) Distribution {
	var med, up, lo float64
	for _, d := range ds {
		med += math.Pow(10, d.Median/10)
		up += math.Pow(10, d.UpperDecile()/10)
		lo += math.Pow(10, d.LowerDecile()/10)
	}
	if med <= 0 {
		return Distribution{Median: math.Inf(-1)}
	}
	m := 10 * math.Log10(med)
	return Distribution{
		Median: m,
		Upper:  math.Max(0, 10*math.Log10(up)-m),
		Lower:  math.Max(0, m-10*math.Log10(lo)),
	}
}
