package predict

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-hf-predict/internal/antenna"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
	"github.com/KI7MT/ki7mt-hf-predict/internal/noise"
)

var (
	noonUTC     = time.Date(2024, 3, 15, 18, 40, 0, 0, time.UTC)
	midnightUTC = time.Date(2024, 3, 15, 23, 20, 0, 0, time.UTC)
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	m, err := ionmap.New(ionmap.Builtin())
	require.NoError(t, err)
	return NewEngine(m, DefaultConfig())
}

func noonRequest(freqs ...float64) Request {
	return Request{
		Tx:          geo.Point{Lat: 40, Lon: -100},
		Rx:          geo.Point{Lat: 45.4, Lon: -100},
		Frequencies: freqs,
		Time:        noonUTC,
		SSN:         100,
		TxPower:     1000,
		Environment: noise.Residential,
	}
}

func TestScenarioNoonShortPath(t *testing.T) {
	e := testEngine(t)
	res, err := e.Predict(context.Background(), noonRequest(10))
	require.NoError(t, err)

	assert.InDelta(t, 600, res.Path.DistanceKm, 5)
	require.Len(t, res.Path.ControlPoints, 1)
	require.True(t, res.Muf.Feasible)
	assert.GreaterOrEqual(t, res.Muf.Muf, 15.0)
	assert.LessOrEqual(t, res.Muf.Muf, 25.0)
	assert.Equal(t, 1, res.Muf.Hops)

	require.Len(t, res.Predictions, 1)
	p := res.Predictions[0]
	require.NoError(t, p.Err)
	require.True(t, p.HasMode)
	assert.Equal(t, 1, p.HopCount())
	assert.Contains(t, []ionosphere.Layer{ionosphere.E, ionosphere.F2}, p.Mode.Layer)
	assert.False(t, p.Mode.OverMuf)
	assert.Greater(t, p.Reliability, 0.8)
	assert.Equal(t, "HF", p.Band)
}

func TestScenarioMidnightLongPath(t *testing.T) {
	e := testEngine(t)
	req := Request{
		Tx:          geo.Point{Lat: -40, Lon: 10},
		Rx:          geo.Point{Lat: 41, Lon: 10},
		Frequencies: []float64{5},
		Time:        midnightUTC,
		SSN:         100,
		TxPower:     1000,
	}
	res, err := e.Predict(context.Background(), req)
	require.NoError(t, err)

	assert.InDelta(t, 9000, res.Path.DistanceKm, 50)
	require.Len(t, res.Path.ControlPoints, 3)
	for _, cp := range res.Path.ControlPoints {
		require.NoError(t, cp.Err)
		assert.False(t, cp.ControlPoint.Layer(ionosphere.F1).Present)
		assert.Less(t, ionosphere.FoE(cp.ControlPoint.ZenithAngle, 100), 0.5)
	}

	require.True(t, res.Muf.Feasible)
	assert.Equal(t, ionosphere.F2, res.Muf.Layer)
	assert.GreaterOrEqual(t, res.Muf.Hops, 3)

	// A frequency comfortably under the MUF must find a multi-hop F2 mode.
	req.Frequencies = []float64{0.8 * res.Muf.Muf}
	res, err = e.Predict(context.Background(), req)
	require.NoError(t, err)
	p := res.Predictions[0]
	require.True(t, p.HasMode)
	assert.Equal(t, ionosphere.F2, p.Mode.Layer)
	assert.GreaterOrEqual(t, p.HopCount(), 3)
}

func TestScenarioAboveMuf(t *testing.T) {
	e := testEngine(t)
	res, err := e.Predict(context.Background(), noonRequest(10))
	require.NoError(t, err)
	muf, fot := res.Muf.Muf, res.Muf.Fot

	res, err = e.Predict(context.Background(), noonRequest(fot, 1.2*muf))
	require.NoError(t, err)
	atFot, above := res.Predictions[0], res.Predictions[1]

	require.True(t, atFot.HasMode)
	assert.False(t, atFot.Mode.OverMuf)

	require.True(t, above.HasMode)
	assert.True(t, above.Mode.OverMuf)
	assert.Equal(t, ionosphere.F2, above.Mode.Layer)
	assert.Greater(t, above.Loss.OverMuf, 0.0)
	assert.Less(t, above.Reliability, atFot.Reliability/2)
}

func TestPredictionsBoundedAcrossBand(t *testing.T) {
	e := testEngine(t)
	var freqs []float64
	for f := 2.0; f <= 30; f += 2 {
		freqs = append(freqs, f)
	}
	req := noonRequest(freqs...)
	req.TxAntenna = antenna.Dipole{HeightMeters: 15}
	req.RxAntenna = antenna.Vertical{}

	res, err := e.Predict(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Predictions, len(freqs))

	for _, p := range res.Predictions {
		require.NoError(t, p.Err)
		assert.GreaterOrEqual(t, p.ServiceProbability, 0.0, "f=%g", p.Frequency)
		assert.LessOrEqual(t, p.ServiceProbability, p.Reliability, "f=%g", p.Frequency)
		assert.LessOrEqual(t, p.Reliability, 1.0, "f=%g", p.Frequency)

		for _, m := range p.Modes {
			assert.LessOrEqual(t, m.ServiceProbability, m.Reliability)
			if m.Mode.OverMuf {
				continue
			}
			got := float64(m.Mode.Hops) * m.Mode.GroundDistance
			assert.InDelta(t, res.Path.DistanceKm, got, 0.01*res.Path.DistanceKm, "f=%g", p.Frequency)
		}

		// Between the E and F2 MUFs the E layer no longer screens the
		// lowest-order F2 mode.
		if p.Frequency > res.Muf.Layers[ionosphere.E].Muf && p.Frequency < res.Muf.Layers[ionosphere.F2].Muf {
			hops := math.MaxInt
			for _, m := range p.Modes {
				if m.Mode.Layer == ionosphere.F2 && !m.Mode.OverMuf {
					hops = min(hops, m.Mode.Hops)
				}
			}
			assert.Equal(t, res.Muf.Layers[ionosphere.F2].Hops, hops, "f=%g", p.Frequency)
		}
	}
}

func TestPredictIdempotent(t *testing.T) {
	e := testEngine(t)
	req := noonRequest(7.0386, 14.0956, 21.0946)
	a, err := e.Predict(context.Background(), req)
	require.NoError(t, err)
	b, err := e.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Muf, b.Muf)
	assert.Equal(t, a.Predictions, b.Predictions)
}

func TestRequestValidation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"ssn too high", func(r *Request) { r.SSN = 350 }, ErrUnsupportedSSN},
		{"negative ssn", func(r *Request) { r.SSN = -1 }, ErrUnsupportedSSN},
		{"bad latitude", func(r *Request) { r.Tx.Lat = 95 }, geo.ErrInvalidCoordinate},
		{"bad month", func(r *Request) { r.Month = 13 }, ionmap.ErrInvalidMonth},
		{"no power", func(r *Request) { r.TxPower = 0 }, ErrInvalidPower},
		{"no frequencies", func(r *Request) { r.Frequencies = nil }, ErrNoFrequencies},
		{"same location", func(r *Request) { r.Rx = r.Tx }, ErrSameLocation},
		{"ten metres apart", func(r *Request) { r.Rx = geo.Point{Lat: r.Tx.Lat + 0.00009, Lon: r.Tx.Lon} }, ErrSameLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := noonRequest(10)
			tt.mutate(&req)
			_, err := e.Predict(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBadFrequencyDoesNotBlockOthers(t *testing.T) {
	e := testEngine(t)
	res, err := e.Predict(context.Background(), noonRequest(40, 10, 1))
	require.NoError(t, err)

	assert.ErrorIs(t, res.Predictions[0].Err, ErrInvalidFrequency)
	assert.ErrorIs(t, res.Predictions[2].Err, ErrInvalidFrequency)
	assert.NoError(t, res.Predictions[1].Err)
	assert.True(t, res.Predictions[1].HasMode)
	assert.Zero(t, res.Predictions[0].Reliability)
}

func TestPredictCancelled(t *testing.T) {
	e := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Predict(ctx, noonRequest(10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictDayRecords(t *testing.T) {
	e := testEngine(t)
	results, err := e.PredictDay(context.Background(), noonRequest(14.0956))
	require.NoError(t, err)
	require.Len(t, results, 24)

	recs := DayRecords(results)
	require.Len(t, recs, 24)
	for h, r := range recs {
		assert.Equal(t, int32(h), r.Hour)
		assert.Equal(t, int32(3), r.Month)
		assert.Equal(t, "EN00", r.TxGrid)
		assert.Equal(t, "20m", r.Band)
		assert.LessOrEqual(t, r.ServiceProb, r.Reliability)
		if !r.HasMode {
			assert.Zero(t, r.SNR)
			assert.Zero(t, r.Hops)
		}
	}
	noon := recs[18]
	assert.True(t, noon.HasMode)
	assert.Equal(t, "F2", noon.MufLayer)
	assert.Greater(t, noon.Muf, float32(14))
}
