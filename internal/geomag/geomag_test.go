package geomag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
)

func TestPole(t *testing.T) {
	f := At(geo.Point{Lat: PoleLat, Lon: PoleLon}, 0)
	assert.InDelta(t, 90, f.Latitude, 1e-4)
	assert.InDelta(t, 90, f.Dip, 1e-4)
	assert.InDelta(t, 2*EquatorFieldNT*gyroMHzPerNT, f.Gyrofrequency, 1e-9)
}

func TestMidLatitude(t *testing.T) {
	p := geo.Point{Lat: 40, Lon: -105}
	f := At(p, 0)
	assert.InDelta(t, 47.7, f.Latitude, 0.5)
	assert.InDelta(t, math.Atan(2*math.Tan(f.Latitude*math.Pi/180))*180/math.Pi, f.Dip, 1e-9)

	high := At(p, 300)
	assert.Less(t, high.Gyrofrequency, f.Gyrofrequency)
	assert.InDelta(t, f.Latitude, high.Latitude, 1e-12)
	assert.LessOrEqual(t, f.Longitudinal(), f.Gyrofrequency)
	assert.Greater(t, f.Longitudinal(), 0.0)
}

func TestSouthernHemisphereDip(t *testing.T) {
	f := At(geo.Point{Lat: -40, Lon: 10}, 0)
	assert.Less(t, f.Latitude, 0.0)
	assert.Less(t, f.Dip, 0.0)
	assert.Greater(t, f.Longitudinal(), 0.0)
}
