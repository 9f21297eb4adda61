package antenna

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsotropic(t *testing.T) {
	assert.Equal(t, 0.0, Isotropic{}.Gain(14, 0.3))
}

func TestDipoleQuarterWaveHeight(t *testing.T) {
	f := 14.0
	d := Dipole{HeightMeters: 299.792458 / f / 4}
	assert.InDelta(t, 2.15+20*math.Log10(2), d.Gain(f, math.Pi/2), 1e-9)
	assert.Equal(t, MinGain, d.Gain(f, 0))
	assert.Greater(t, d.Gain(f, math.Pi/2), d.Gain(f, 10*math.Pi/180))
}

func TestVerticalFavoursLowAngles(t *testing.T) {
	v := Vertical{}
	assert.InDelta(t, 5.15, v.Gain(7, 0), 1e-9)
	assert.Greater(t, v.Gain(7, 10*math.Pi/180), v.Gain(7, 60*math.Pi/180))
	assert.Equal(t, MinGain, v.Gain(7, math.Pi/2))
}

func TestParse(t *testing.T) {
	for in, want := range map[string]string{
		"":            "isotropic",
		"Isotropic":   "isotropic",
		"vertical":    "vertical",
		"dipole":      "dipole@10m",
		"dipole:15.5": "dipole@15.5m",
	} {
		a, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, a.Name(), in)
	}
	_, err := Parse("yagi")
	assert.ErrorIs(t, err, ErrUnknownAntenna)
	_, err = Parse("dipole:-3")
	assert.ErrorIs(t, err, ErrUnknownAntenna)
}
