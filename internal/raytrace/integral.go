package raytrace

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
)

// quadNodes is the Gauss-Legendre order of the fallback quadrature.
const quadNodes = 64

// relative threshold below which a coefficient is treated as zero
const coeffEps = 1e-10

// groundAngle returns γ∫dr/(r√Q) over [r1, r2], the Earth-centred angle a
// ray with Bouguer constant γ sweeps crossing the shell. turning marks r2
// as a reflection point (Q(r2)=0).
func groundAngle(q ionosphere.Quadratic, gamma, r1, r2 float64, turning bool) float64 {
	if gamma < 1e-9 || r2 <= r1 {
		return 0
	}
	v := gamma * (angleAntiderivative(q, r2) - angleAntiderivative(q, r1))
	if math.IsNaN(v) || math.IsInf(v, 0) || v < -1e-12 {
		return gamma * quadrature(q, r1, r2, turning, func(r float64) float64 { return 1 / r })
	}
	return math.Max(0, v)
}

// groupPath returns ∫ r dr/√Q over [r1, r2], the one-way group path
// through the shell.
func groupPath(q ionosphere.Quadratic, r1, r2 float64, turning bool) float64 {
	if r2 <= r1 {
		return 0
	}
	v := pathAntiderivative(q, r2) - pathAntiderivative(q, r1)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < -1e-9 {
		return quadrature(q, r1, r2, turning, func(r float64) float64 { return r })
	}
	return math.Max(0, v)
}

func scale(q ionosphere.Quadratic, r float64) float64 {
	return math.Abs(q.A)*r*r + math.Abs(q.B)*r + math.Abs(q.C)
}

func sqrtQ(q ionosphere.Quadratic, r float64) float64 {
	return math.Sqrt(math.Max(0, q.Eval(r)))
}

// angleAntiderivative is an antiderivative of 1/(r√Q).
func angleAntiderivative(q ionosphere.Quadratic, r float64) float64 {
	s := sqrtQ(q, r)
	eps := coeffEps * scale(q, r)
	switch {
	case q.C > eps:
		sc := math.Sqrt(q.C)
		return -math.Log(math.Abs((2*q.C+q.B*r+2*sc*s)/r)) / sc
	case q.C < -eps:
		d := q.Discriminant()
		arg := (q.B*r + 2*q.C) / (r * math.Sqrt(d))
		return math.Asin(clamp(arg)) / math.Sqrt(-q.C)
	default:
		return -2 * s / (q.B * r)
	}
}

// pathAntiderivative is an antiderivative of r/√Q.
func pathAntiderivative(q ionosphere.Quadratic, r float64) float64 {
	s := sqrtQ(q, r)
	eps := coeffEps * scale(q, r) / (r * r)
	if math.Abs(q.A) <= eps {
		// Q is linear in r
		return 2 / (3 * q.B * q.B) * (q.B*r - 2*q.C) * s
	}
	var j float64
	if q.A > 0 {
		sa := math.Sqrt(q.A)
		j = math.Log(math.Abs(2*sa*s+2*q.A*r+q.B)) / sa
	} else {
		j = -math.Asin(clamp((2*q.A*r+q.B)/math.Sqrt(q.Discriminant()))) / math.Sqrt(-q.A)
	}
	return s/q.A - q.B/(2*q.A)*j
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

// quadrature integrates g(r)/√Q numerically. When r2 is a turning point the
// substitution r = r2 - u² removes the inverse-square-root singularity.
func quadrature(q ionosphere.Quadratic, r1, r2 float64, turning bool, g func(float64) float64) float64 {
	if !turning {
		return quad.Fixed(func(r float64) float64 {
			s := sqrtQ(q, r)
			if s == 0 {
				return 0
			}
			return g(r) / s
		}, r1, r2, quadNodes, nil, 0)
	}
	slope := math.Abs(2*q.A*r2 + q.B) // |Q'(r2)|
	return quad.Fixed(func(u float64) float64 {
		r := r2 - u*u
		v := q.Eval(r)
		if v <= 0 {
			v = slope * u * u
		}
		if v <= 0 {
			return 0
		}
		return 2 * u * g(r) / math.Sqrt(v)
	}, 0, math.Sqrt(r2-r1), quadNodes, nil, 0)
}
