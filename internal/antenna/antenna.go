// Package antenna provides simple far-field gain patterns over ground.
package antenna

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrUnknownAntenna = errors.New("unknown antenna")

// MinGain floors the pattern nulls, dBi.
const MinGain = -20.0

// Antenna returns gain in dBi at a frequency (MHz) and elevation (radians).
type Antenna interface {
	Gain(f, elevation float64) float64
	Name() string
}

// Isotropic radiates equally in every direction.
type Isotropic struct{}

func (Isotropic) Gain(_, _ float64) float64 { return 0 }
func (Isotropic) Name() string              { return "isotropic" }

// Dipole is a horizontal half-wave dipole, broadside, at a fixed height
// above perfectly conducting ground.
type Dipole struct {
	HeightMeters float64
}

func (d Dipole) Name() string { return fmt.Sprintf("dipole@%gm", d.HeightMeters) }

func (d Dipole) Gain(f, elevation float64) float64 {
	lambda := 299.792458 / f
	k := 2 * math.Pi * d.HeightMeters / lambda
	af := 2 * math.Sin(k*math.Sin(elevation))
	return floor(2.15 + 20*math.Log10(math.Abs(af)))
}

// Vertical is a quarter-wave monopole over perfectly conducting ground.
type Vertical struct{}

func (Vertical) Name() string { return "vertical" }

func (Vertical) Gain(_, elevation float64) float64 {
	c := math.Cos(elevation)
	if c < 1e-9 {
		return MinGain
	}
	pattern := math.Cos(math.Pi/2*math.Sin(elevation)) / c
	return floor(5.15 + 20*math.Log10(math.Abs(pattern)))
}

func floor(g float64) float64 {
	if math.IsNaN(g) || g < MinGain {
		return MinGain
	}
	return g
}

// Parse resolves "isotropic", "vertical" or "dipole[:height_m]".
func Parse(s string) (Antenna, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "isotropic":
		return Isotropic{}, nil
	case s == "vertical":
		return Vertical{}, nil
	case strings.HasPrefix(s, "dipole"):
		h := 10.0
		if rest, ok := strings.CutPrefix(s, "dipole:"); ok {
			if _, err := fmt.Sscanf(rest, "%g", &h); err != nil || h <= 0 {
				return nil, fmt.Errorf("%w: dipole height %q", ErrUnknownAntenna, rest)
			}
		}
		return Dipole{HeightMeters: h}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAntenna, s)
}
