package noise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManMadeResidential(t *testing.T) {
	d := ManMade(Residential, 10)
	assert.InDelta(t, 72.5-27.7, d.Median, 1e-9)
	assert.Greater(t, ManMade(City, 10).Median, ManMade(QuietRural, 10).Median)
	assert.Greater(t, ManMade(Residential, 3).Median, ManMade(Residential, 30).Median)
}

func TestGalacticCutoff(t *testing.T) {
	assert.True(t, math.IsInf(Galactic(8, 9).Median, -1))
	assert.InDelta(t, 52-23*math.Log10(20), Galactic(20, 9).Median, 1e-9)
}

func TestAtmosphericDiurnal(t *testing.T) {
	night := Atmospheric(7, 30, 0)
	day := Atmospheric(7, 30, 0.5)
	assert.InDelta(t, 25, night.Median-day.Median, 1e-9)
	assert.Greater(t, Atmospheric(7, 5, 0).Median, Atmospheric(7, 60, 0).Median)
}

func TestPowerCombination(t *testing.T) {
	s := Site{Environment: Residential, Latitude: 40, LocalTime: 0.5, FoF2: 12}
	p := Power(s, 10)
	mm := ManMade(Residential, 10)
	assert.GreaterOrEqual(t, p.Median, mm.Median+ThermalFloor)
	assert.Less(t, p.Median, mm.Median+ThermalFloor+3)
	assert.Greater(t, p.Upper, 0.0)
	assert.Greater(t, p.Lower, 0.0)
	assert.Len(t, Components(s, 10), 3)
}

func TestParseEnvironment(t *testing.T) {
	for _, e := range []Environment{City, Residential, Rural, QuietRural, Noisy} {
		got, err := ParseEnvironment(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
	got, err := ParseEnvironment("QuietRural")
	require.NoError(t, err)
	assert.Equal(t, QuietRural, got)

	_, err = ParseEnvironment("space")
	assert.ErrorIs(t, err, ErrUnknownEnvironment)
}
