// Package bands maps HF frequencies onto the amateur band plan and supplies
// the default prediction frequencies.
//
// Band IDs follow the ADIF numbering used by the lab's WSPR tables so the
// band column of a prediction joins directly against spot data.
package bands

import (
	"slices"
	"strings"
)

// Prediction range, MHz.
const (
	MinFrequency = 2.0
	MaxFrequency = 30.0
)

// ADIF band IDs.
const (
	BandUnknown int32 = 0
	BandMF      int32 = 4 // 300 kHz - 3 MHz
	BandHF      int32 = 5 // 3-30 MHz
	BandVHF     int32 = 6 // 30-300 MHz

	Band160m int32 = 102
	Band80m  int32 = 103
	Band60m  int32 = 104
	Band40m  int32 = 105
	Band30m  int32 = 106
	Band20m  int32 = 107
	Band17m  int32 = 108
	Band15m  int32 = 109
	Band12m  int32 = 110
	Band10m  int32 = 111
)

// Band is one amateur allocation with its WSPR segment.
type Band struct {
	ID         int32
	Name       string
	MinFreqMHz float64
	MaxFreqMHz float64
	WSPRMHz    float64 // lower edge of the 200 Hz WSPR segment
}

// Sorted by frequency; Lookup relies on it.
var amateurBands = []Band{
	{ID: Band160m, Name: "160m", MinFreqMHz: 1.800, MaxFreqMHz: 2.000, WSPRMHz: 1.8366},
	{ID: Band80m, Name: "80m", MinFreqMHz: 3.500, MaxFreqMHz: 4.000, WSPRMHz: 3.5926},
	{ID: Band60m, Name: "60m", MinFreqMHz: 5.2872, MaxFreqMHz: 5.405, WSPRMHz: 5.2872},
	{ID: Band40m, Name: "40m", MinFreqMHz: 7.000, MaxFreqMHz: 7.300, WSPRMHz: 7.0386},
	{ID: Band30m, Name: "30m", MinFreqMHz: 10.100, MaxFreqMHz: 10.150, WSPRMHz: 10.1387},
	{ID: Band20m, Name: "20m", MinFreqMHz: 14.000, MaxFreqMHz: 14.350, WSPRMHz: 14.0956},
	{ID: Band17m, Name: "17m", MinFreqMHz: 18.068, MaxFreqMHz: 18.168, WSPRMHz: 18.1046},
	{ID: Band15m, Name: "15m", MinFreqMHz: 21.000, MaxFreqMHz: 21.450, WSPRMHz: 21.0946},
	{ID: Band12m, Name: "12m", MinFreqMHz: 24.890, MaxFreqMHz: 24.990, WSPRMHz: 24.9246},
	{ID: Band10m, Name: "10m", MinFreqMHz: 28.000, MaxFreqMHz: 29.700, WSPRMHz: 28.1246},
}

// Lookup returns the amateur band containing freq (MHz).
func Lookup(freq float64) (Band, bool) {
	left, right := 0, len(amateurBands)-1
	for left <= right {
		mid := (left + right) / 2
		b := amateurBands[mid]
		if freq >= b.MinFreqMHz && freq <= b.MaxFreqMHz {
			return b, true
		}
		if freq < b.MinFreqMHz {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return Band{}, false
}

// ByName returns the band with the given name, e.g. "20m". Case and
// surrounding space are ignored.
func ByName(name string) (Band, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, b := range amateurBands {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// Classify returns the band ID and label for freq: the amateur band when
// there is one, otherwise the ITU frequency class.
func Classify(freq float64) (int32, string) {
	if b, ok := Lookup(freq); ok {
		return b.ID, b.Name
	}
	switch {
	case freq < 0.3:
		return BandUnknown, "Unknown"
	case freq < 3.0:
		return BandMF, "MF"
	case freq < 30.0:
		return BandHF, "HF"
	case freq < 300.0:
		return BandVHF, "VHF"
	default:
		return BandUnknown, "Unknown"
	}
}

// Label returns the band name or frequency class for freq.
func Label(freq float64) string {
	_, name := Classify(freq)
	return name
}

// InRange reports whether freq lies inside the prediction range.
func InRange(freq float64) bool {
	return freq >= MinFrequency && freq <= MaxFrequency
}

// All returns a copy of the band table.
func All() []Band {
	return slices.Clone(amateurBands)
}

// DefaultFrequencies returns the WSPR segment frequencies that fall inside
// the prediction range, ascending.
func DefaultFrequencies() []float64 {
	var out []float64
	for _, b := range amateurBands {
		if InRange(b.WSPRMHz) {
			out = append(out, b.WSPRMHz)
		}
	}
	return out
}

// ParseList resolves band names into their WSPR segment frequencies.
// Unknown names are returned in missing.
func ParseList(names []string) (freqs []float64, missing []string) {
	for _, n := range names {
		b, ok := ByName(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		freqs = append(freqs, b.WSPRMHz)
	}
	return freqs, missing
}
