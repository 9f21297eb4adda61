// Package solar provides solar activity indices for predictions: SSN and
// 10.7 cm flux conversion, 12-month smoothing, and lookup of observed
// indices stored in ClickHouse.
package solar

import (
	"errors"
	"math"
	"time"
)

// MinFlux is the quiet-sun 10.7 cm flux floor, SFU.
const MinFlux = 63.7

var ErrNoData = errors.New("no solar index data")

// FluxFromSSN converts a 12-month smoothed sunspot number to 10.7 cm flux
// (SFU) with the CCIR quadratic.
func FluxFromSSN(ssn float64) float64 {
	return MinFlux + 0.728*ssn + 8.9e-4*ssn*ssn
}

// SSNFromFlux inverts FluxFromSSN. Flux at or below the floor maps to 0.
func SSNFromFlux(flux float64) float64 {
	if flux <= MinFlux {
		return 0
	}
	const a, b = 8.9e-4, 0.728
	c := MinFlux - flux
	return (-b + math.Sqrt(b*b-4*a*c)) / (2 * a)
}

// Monthly is one month's mean index.
type Monthly struct {
	Month time.Time // first day of the month, UTC
	SSN   float64
	SFI   float64
}

// Smoothed returns the 13-month running mean sunspot number centred on
// months[i], with half weight on the two end months. It needs six months
// either side; ok is false otherwise.
func Smoothed(months []Monthly, i int) (ssn float64, ok bool) {
	if i < 6 || i+6 >= len(months) {
		return 0, false
	}
	sum := 0.5*months[i-6].SSN + 0.5*months[i+6].SSN
	for k := i - 5; k <= i+5; k++ {
		sum += months[k].SSN
	}
	return sum / 12, true
}

// Effective returns the SSN to predict with for months[i]: the smoothed
// value when available, otherwise the monthly mean.
func Effective(months []Monthly, i int) float64 {
	if s, ok := Smoothed(months, i); ok {
		return s
	}
	return months[i].SSN
}
