// Package ionosphere builds vertical electron-density profiles at path
// control points. A profile is a stack of quasi-parabolic (QP) layers for
// E, F1 and F2, decomposed into height pieces for the ray tracer.
package ionosphere

import (
	"fmt"
	"time"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geomag"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
)

// Layer identifies an ionospheric layer.
type Layer int

const (
	E Layer = iota
	F1
	F2
)

// NumLayers is the number of modelled layers.
const NumLayers = 3

// Layers lists the layers bottom to top.
var Layers = [NumLayers]Layer{E, F1, F2}

var layerNames = [...]string{E: "E", F1: "F1", F2: "F2"}

func (l Layer) String() string {
	if l < 0 || int(l) >= len(layerNames) {
		return fmt.Sprintf("Layer(%d)", int(l))
	}
	return layerNames[l]
}

// LayerSample is the critical frequency and shape of one layer at one
// control point, with the decile spread of the critical frequency.
type LayerSample struct {
	Layer             Layer
	Present           bool
	CriticalFrequency float64 // MHz, median
	PeakHeight        float64 // km
	SemiThickness     float64 // km
	Upper             float64 // upper decile critical frequency, MHz
	Lower             float64 // lower decile critical frequency, MHz
}

// ControlPoint is the ionospheric state sampled at one point of a path.
type ControlPoint struct {
	Location     geo.Point
	Time         time.Time
	Month        int
	SSN          float64
	ZenithAngle  float64 // degrees
	LocalTime    float64 // fraction of day
	Field        geomag.Field
	FoF2         ionmap.Triple
	M3000        ionmap.Triple
	Layers       [NumLayers]LayerSample
	Extrapolated bool
}

// Daylight reports whether the sun is above the horizon at the point.
func (cp ControlPoint) Daylight() bool {
	return cp.ZenithAngle < 90
}

// Layer returns the sample for l.
func (cp ControlPoint) Layer(l Layer) LayerSample {
	return cp.Layers[l]
}
