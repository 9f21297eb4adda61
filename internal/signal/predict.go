package signal

import (
	"math"

	"github.com/KI7MT/ki7mt-hf-predict/internal/raytrace"
)

// Defaults for a circuit with no explicit system parameters.
const (
	DefaultRequiredSNR          = 48.0 // dB-Hz
	DefaultEquipmentReliability = 0.98

	// Within-the-hour fading, dB from median to the deciles.
	FadeUpper = 5.0
	FadeLower = 8.0

	// Share of the absorption loss treated as day-to-day variability.
	absorptionVariability = 0.2

	hopReliability     = 0.99
	overMufReliability = 0.9
)

// Params holds the system and path parameters for one prediction.
type Params struct {
	TxPower              float64 // dBW
	TxGain               float64 // dBi at the mode's elevation
	RxGain               float64 // dBi at the mode's elevation
	RequiredSNR          float64 // dB-Hz
	EquipmentReliability float64 // 0..1
	Noise                Distribution
	Absorption           Absorption
	Ground               Ground
	CriticalFrequency    float64          // reflecting layer, MHz
	Muf                  raytrace.MufInfo // reflecting layer
}

// Prediction is the signal and reliability estimate for one mode.
type Prediction struct {
	Mode               raytrace.Mode
	Frequency          float64
	Loss               Loss
	RequiredSNR        float64
	Noise              Distribution // dBW/Hz
	Signal             Distribution // dBW
	SNR                Distribution // dB-Hz
	MufProbability     float64
	Reliability        float64
	ServiceProbability float64
	HasMode            bool
}

// ModeFactor is the probability that the equipment and operator make use of
// a mode: each extra hop and operation above the MUF reduce it.
func ModeFactor(m raytrace.Mode) float64 {
	f := math.Pow(hopReliability, float64(max(m.Hops-1, 0)))
	if m.OverMuf {
		f *= overMufReliability
	}
	return f
}

// MufProbability returns the probability that the day's MUF is at least f.
func MufProbability(f float64, muf raytrace.MufInfo) float64 {
	if muf.Muf <= 0 {
		return 0
	}
	d := Distribution{Median: muf.Muf, Upper: muf.SigmaHigh, Lower: muf.SigmaLow}
	return d.ProbabilityAbove(f)
}

// Predict evaluates mode m at frequency f.
func Predict(m raytrace.Mode, f float64, p Params) Prediction {
	loss := ModeLoss(m, f, p)
	absVar := absorptionVariability * loss.Absorption

	sig := Distribution{
		Median: p.TxPower + p.TxGain + p.RxGain - loss.Total,
		Upper:  math.Hypot(FadeUpper, absVar),
		Lower:  math.Hypot(FadeLower, absVar),
	}
	snr := Difference(sig, p.Noise)

	mufProb := MufProbability(f, p.Muf)
	rel := clamp01(snr.ProbabilityAbove(p.RequiredSNR) * mufProb)
	sp := clamp01(rel * clamp01(p.EquipmentReliability) * ModeFactor(m))

	return Prediction{
		Mode:               m,
		Frequency:          f,
		Loss:               loss,
		RequiredSNR:        p.RequiredSNR,
		Noise:              p.Noise,
		Signal:             sig,
		SNR:                snr,
		MufProbability:     mufProb,
		Reliability:        rel,
		ServiceProbability: math.Min(sp, rel),
		HasMode:            true,
	}
}

// NoMode is the prediction for a frequency no mode supports.
func NoMode(f float64, p Params) Prediction {
	return Prediction{
		Frequency:   f,
		RequiredSNR: p.RequiredSNR,
		Noise:       p.Noise,
		Signal:      Distribution{Median: math.Inf(-1)},
		SNR:         Distribution{Median: math.Inf(-1)},
	}
}

// Better reports whether a should be preferred over b: higher reliability,
// then fewer hops, then higher median SNR.
func Better(a, b Prediction) bool {
	if a.HasMode != b.HasMode {
		return a.HasMode
	}
	if a.Reliability != b.Reliability {
		return a.Reliability > b.Reliability
	}
	if a.Mode.Hops != b.Mode.Hops {
		return a.Mode.Hops < b.Mode.Hops
	}
	return a.SNR.Median > b.SNR.Median
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
