package raytrace

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
)

func deg(d float64) float64 { return d * math.Pi / 180 }

// singleLayer builds a profile holding only an F2 layer.
func singleLayer(t *testing.T, fc, hm, ym float64) *ionosphere.Profile {
	t.Helper()
	cp := ionosphere.ControlPoint{
		FoF2:  ionmap.Triple{Median: fc, Low: 0.85 * fc, High: 1.15 * fc},
		M3000: ionmap.Triple{Median: 3, Low: 2.85, High: 3.15},
	}
	cp.Layers[ionosphere.E] = ionosphere.LayerSample{Layer: ionosphere.E}
	cp.Layers[ionosphere.F1] = ionosphere.LayerSample{Layer: ionosphere.F1}
	cp.Layers[ionosphere.F2] = ionosphere.LayerSample{
		Layer: ionosphere.F2, Present: true,
		CriticalFrequency: fc, PeakHeight: hm, SemiThickness: ym,
		Upper: 1.15 * fc, Lower: 0.85 * fc,
	}
	p, err := ionosphere.NewBuilder(nil).Build(cp)
	require.NoError(t, err)
	return p
}

var (
	noonUTC     = time.Date(2024, 3, 15, 18, 40, 0, 0, time.UTC)
	midnightUTC = time.Date(2024, 3, 15, 23, 20, 0, 0, time.UTC)
)

func pathProfiles(t *testing.T, tx, rx geo.Point, at time.Time, ssn float64) (geo.Path, []*ionosphere.Profile) {
	t.Helper()
	m, err := ionmap.New(ionmap.Builtin())
	require.NoError(t, err)
	b := ionosphere.NewBuilder(m)
	path, err := geo.NewPath(tx, rx)
	require.NoError(t, err)

	var profiles []*ionosphere.Profile
	for _, d := range path.ControlPointDistances() {
		cp, err := b.ControlPoint(path.PointAt(d), at, int(at.Month()), ssn)
		require.NoError(t, err)
		p, err := b.Build(cp)
		require.NoError(t, err)
		profiles = append(profiles, p)
	}
	return path, profiles
}

func TestFreeSpaceIntegrals(t *testing.T) {
	beta := deg(20)
	gamma := r0 * math.Cos(beta)
	q := ionosphere.FreeSpace(gamma)
	r1, r2 := r0, r0+250

	want := math.Asin(gamma/r1) - math.Asin(gamma/r2)
	assert.InDelta(t, want, groundAngle(q, gamma, r1, r2, false), 1e-12)

	wantPath := math.Sqrt(r2*r2-gamma*gamma) - math.Sqrt(r1*r1-gamma*gamma)
	assert.InDelta(t, wantPath, groupPath(q, r1, r2, false), 1e-9)
}

func TestClosedFormMatchesQuadrature(t *testing.T) {
	s := ionosphere.Segment{Layer: ionosphere.F2, CriticalFrequency: 9, PeakHeight: 320, SemiThickness: 90}
	for _, tc := range []struct {
		f, beta float64
	}{
		{6, deg(10)}, {12, deg(25)}, {20, deg(8)},
	} {
		gamma := r0 * math.Cos(tc.beta)
		q := s.Quadratic(tc.f, gamma)
		r1 := r0 + s.Base() + 1
		r2 := r0 + s.PeakHeight - 1
		if rt, ok := q.FirstRoot(r1, r2); ok {
			closed := groundAngle(q, gamma, r1, rt, true)
			num := gamma * quadrature(q, r1, rt, true, func(r float64) float64 { return 1 / r })
			assert.InEpsilon(t, num, closed, 1e-3, "f=%v", tc.f)

			cp := groupPath(q, r1, rt, true)
			np := quadrature(q, r1, rt, true, func(r float64) float64 { return r })
			assert.InEpsilon(t, np, cp, 1e-3, "f=%v", tc.f)
			continue
		}
		closed := groundAngle(q, gamma, r1, r2, false)
		num := gamma * quadrature(q, r1, r2, false, func(r float64) float64 { return 1 / r })
		assert.InEpsilon(t, num, closed, 1e-6, "f=%v", tc.f)
		assert.InEpsilon(t,
			quadrature(q, r1, r2, false, func(r float64) float64 { return r }),
			groupPath(q, r1, r2, false), 1e-6, "f=%v", tc.f)
	}
}

func TestMirrorGeometryRoundTrip(t *testing.T) {
	for _, d := range []float64{300, 1500, 3500} {
		beta := HopElevation(d, 300)
		assert.InDelta(t, 300, VirtualHeight(beta, d), 1e-6)
	}
	assert.InDelta(t, math.Pi/2, IncidenceAngle(0, 0), 1e-12)
	assert.InDelta(t, 2*300.0, MirrorGroupPath(0, 300), 1e-9)
}

func TestVerticalTraceBelowCritical(t *testing.T) {
	p := singleLayer(t, 10, 300, 100)
	ray := Trace(p, 8, math.Pi/2)
	require.True(t, ray.Reflected)
	assert.Equal(t, ionosphere.F2, ray.Layer)

	seg, _ := p.Segment(ionosphere.F2)
	assert.InDelta(t, 64, seg.PlasmaFrequency2(ray.ReflectionHeight), 0.05)
	assert.Less(t, ray.GroundDistance, 1e-6)
	assert.Greater(t, ray.GroupPath/2, ray.ReflectionHeight)

	escaped := Trace(p, 11, math.Pi/2)
	assert.False(t, escaped.Reflected)
}

func TestObliqueRayLandsBeyondMirrorFlatEstimate(t *testing.T) {
	p := singleLayer(t, 10, 300, 100)
	ray := Trace(p, 14, deg(30))
	require.True(t, ray.Reflected)
	assert.Greater(t, ray.GroundDistance, 500.0)
	assert.Less(t, ray.GroundDistance, 1500.0)
	assert.Greater(t, ray.VirtualHeight(), ray.ReflectionHeight)
}

func TestSolveReturnsPairAboveCritical(t *testing.T) {
	p := singleLayer(t, 8, 300, 100)
	f := 12.0
	skip := layerSkip(p, ionosphere.F2, f, DefaultMinElevation)
	require.True(t, skip.ok)

	rs := ComputeReflectrix(p, f, DefaultMinElevation)
	require.Len(t, rs, 1)
	target := skip.skip.GroundDistance * 1.1
	sol := Solve(rs[0], target, 1)
	require.Equal(t, Pair, sol.Kind)

	modes := sol.Modes()
	require.Len(t, modes, 2)
	assert.Equal(t, Normal, modes[0].Kind)
	assert.Equal(t, Pedersen, modes[1].Kind)
	assert.Less(t, modes[0].Elevation, modes[1].Elevation)
	for _, m := range modes {
		assert.InEpsilon(t, target, m.GroundDistance, 0.01)
	}

	none := Solve(rs[0], skip.skip.GroundDistance*0.8, 1)
	assert.Equal(t, NoSolution, none.Kind)
	assert.Empty(t, none.Modes())
}

func TestFindModesConsistencyAndOrder(t *testing.T) {
	path, profiles := pathProfiles(t, geo.Point{Lat: 40, Lon: -100}, geo.Point{Lat: 45.4, Lon: -100}, noonUTC, 100)
	require.Len(t, profiles, 1)

	rs := ComputeReflectrix(profiles[0], 10, DefaultMinElevation)
	modes := FindModes(rs, path.DistanceKm, 4)
	require.NotEmpty(t, modes)
	assert.Equal(t, 1, modes[0].Hops)

	for i, m := range modes {
		assert.InEpsilon(t, path.DistanceKm, m.GroundDistance*float64(m.Hops), 0.01)
		assert.GreaterOrEqual(t, m.Elevation, DefaultMinElevation)
		assert.Less(t, m.Elevation, math.Pi/2)
		if i > 0 {
			assert.LessOrEqual(t, modes[i-1].Hops, m.Hops)
		}
	}
}

func TestFindModesVerticalIncidence(t *testing.T) {
	p := singleLayer(t, 10, 300, 100)
	rs := ComputeReflectrix(p, 7, DefaultMinElevation)
	modes := FindModes(rs, 4, 3)
	require.Len(t, modes, 1)
	assert.Equal(t, Vertical, modes[0].Kind)
	assert.Greater(t, modes[0].ElevationDeg(), 85.0)
	assert.Equal(t, 4.0, modes[0].GroundDistance)
}

func TestScenarioNoonCircuitMuf(t *testing.T) {
	path, profiles := pathProfiles(t, geo.Point{Lat: 40, Lon: -100}, geo.Point{Lat: 45.4, Lon: -100}, noonUTC, 100)
	assert.InDelta(t, 600, path.DistanceKm, 5)

	c := ComputeCircuitMuf(profiles, path.DistanceKm, DefaultMinElevation)
	require.True(t, c.Feasible)
	assert.Equal(t, ionosphere.F2, c.Layer)
	assert.Equal(t, 1, c.Hops)
	assert.True(t, c.Converged)
	assert.LessOrEqual(t, c.Iterations, MaxMufIterations)
	assert.GreaterOrEqual(t, c.Muf, 15.0)
	assert.LessOrEqual(t, c.Muf, 25.0)

	assert.Less(t, c.Fot, c.Muf)
	assert.Less(t, c.Muf, c.Hpf)
	assert.InDelta(t, c.Muf*(1+c.SigmaHigh/c.Muf), c.Hpf, 1e-9)

	assert.True(t, c.Layers[ionosphere.E].Feasible)
	assert.Less(t, c.Layers[ionosphere.E].Muf, c.Muf)
	assert.Equal(t, 0, c.Controlling[ionosphere.F2])
}

func TestLayerSkipScreenedByPenetration(t *testing.T) {
	_, profiles := pathProfiles(t, geo.Point{Lat: 40, Lon: -100}, geo.Point{Lat: 45.4, Lon: -100}, noonUTC, 100)
	var p *ionosphere.Profile
	for _, c := range profiles {
		if c.Has(ionosphere.F1) {
			p = c
		}
	}
	require.NotNil(t, p)

	// Below the F1 penetration frequency every angle is screened by E.
	f := 0.9 * p.Penetration[ionosphere.F1]
	for _, beta := range SweepAngles(DefaultMinElevation) {
		require.False(t, p.Reaches(ionosphere.F1, f, beta))
		r := Trace(p, f, beta)
		require.True(t, r.Reflected)
		assert.Equal(t, ionosphere.E, r.Layer)
	}
	assert.False(t, layerSkip(p, ionosphere.F1, f, DefaultMinElevation).ok)

	// A screened angle never reflects from the layer it was screened from.
	for _, f := range []float64{2, 4, 6, 9, 12, 16} {
		for _, beta := range SweepAngles(DefaultMinElevation) {
			for _, l := range []ionosphere.Layer{ionosphere.F1, ionosphere.F2} {
				if p.Reaches(l, f, beta) {
					continue
				}
				r := Trace(p, f, beta)
				require.True(t, r.Reflected, "f=%g beta=%g", f, beta)
				assert.NotEqual(t, l, r.Layer, "f=%g beta=%g", f, beta)
			}
		}
	}
	assert.True(t, layerSkip(p, ionosphere.E, 2, DefaultMinElevation).ok)
}

func TestMufMatchesModeSearch(t *testing.T) {
	path, profiles := pathProfiles(t, geo.Point{Lat: 40, Lon: -100}, geo.Point{Lat: 45.4, Lon: -100}, noonUTC, 100)
	info := ComputeLayerMuf(profiles[0], ionosphere.F2, path.DistanceKm, DefaultMinElevation)
	require.True(t, info.Feasible)

	hasF2 := func(f float64) bool {
		for _, m := range FindModes(ComputeReflectrix(profiles[0], f, DefaultMinElevation), path.DistanceKm, 1) {
			if m.Layer == ionosphere.F2 {
				return true
			}
		}
		return false
	}
	assert.True(t, hasF2(0.97*info.Muf))
	assert.False(t, hasF2(1.05*info.Muf))
}

func TestScenarioMidnightLongPath(t *testing.T) {
	path, profiles := pathProfiles(t, geo.Point{Lat: -40, Lon: 10}, geo.Point{Lat: 41, Lon: 10}, midnightUTC, 100)
	assert.InDelta(t, 9000, path.DistanceKm, 50)
	require.Len(t, profiles, 3)

	for _, p := range profiles {
		assert.False(t, p.Has(ionosphere.F1))
		assert.False(t, p.Has(ionosphere.E))
	}

	c := ComputeCircuitMuf(profiles, path.DistanceKm, DefaultMinElevation)
	require.True(t, c.Feasible)
	assert.Equal(t, ionosphere.F2, c.Layer)
	assert.GreaterOrEqual(t, c.Hops, 3)
	assert.False(t, c.Layers[ionosphere.F1].Feasible)
	assert.Equal(t, -1, c.Controlling[ionosphere.E])
}

func TestLayerMufAbsentLayer(t *testing.T) {
	p := singleLayer(t, 9, 300, 90)
	info := ComputeLayerMuf(p, ionosphere.E, 1000, DefaultMinElevation)
	assert.False(t, info.Feasible)
	assert.Zero(t, info.Muf)
}

func TestRefineMufIterationCap(t *testing.T) {
	p := singleLayer(t, 9, 300, 90)
	// A high starting mirror puts the first estimate safely below the MUF.
	const target, h0 = 1500.0, 450.0

	full, _, fits := refineMuf(p, ionosphere.F2, 9, target, h0, DefaultMinElevation, MaxMufIterations)
	require.True(t, fits)
	require.True(t, full.Converged)
	require.Greater(t, full.Iterations, 1)

	for limit := 1; limit < full.Iterations; limit++ {
		ref, skip, _ := refineMuf(p, ionosphere.F2, 9, target, h0, DefaultMinElevation, limit)
		assert.False(t, ref.Converged, "limit=%d", limit)
		assert.Equal(t, limit, ref.Iterations)
		// The reported value is the estimate whose skip ray was kept.
		assert.Equal(t, ref.Value, skip.Frequency, "limit=%d", limit)
		assert.True(t, layerSkip(p, ionosphere.F2, ref.Value, DefaultMinElevation).ok)
	}

	first, _, _ := refineMuf(p, ionosphere.F2, 9, target, h0, DefaultMinElevation, 1)
	assert.Equal(t, firstEstimate(9, target, h0), first.Value)
}

func TestMinHops(t *testing.T) {
	assert.Equal(t, 1, minHops(1000, 300, DefaultMinElevation, 8))
	assert.Equal(t, 2, minHops(5000, 300, DefaultMinElevation, 8))
	assert.Equal(t, 0, minHops(40000, 110, DefaultMinElevation, 8))
	assert.InDelta(t, 10*math.Sqrt(2), firstEstimate(10, 600, 300), 1e-9)
}

func TestRayKindString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "vertical", Vertical.String())
	assert.Equal(t, "RayKind(7)", RayKind(7).String())
	assert.Equal(t, "RayKind(-1)", RayKind(-1).String())
}

func TestTraceIsDeterministic(t *testing.T) {
	p := singleLayer(t, 9, 300, 90)
	a := Trace(p, 13.7, deg(17.3))
	b := Trace(p, 13.7, deg(17.3))
	assert.Equal(t, a, b)
}
