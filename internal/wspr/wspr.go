// Package wspr reads WSPRnet spot archives and compares the reported
// signal-to-noise ratios with predicted ones.
//
// WSPR reports SNR in a 2500 Hz reference bandwidth; predictions are in
// dB-Hz. BandwidthCorrection converts between the two.
package wspr

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KI7MT/ki7mt-hf-predict/internal/bands"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
)

// =============================================================================
// Constants
// =============================================================================

// BandwidthCorrection is 10*log10(2500), the offset from WSPR SNR to dB-Hz.
const BandwidthCorrection = 33.98

// DecodeThreshold is the lowest SNR (dB in 2500 Hz) WSPR reliably decodes.
const DecodeThreshold = -28.0

var (
	ErrSameSite    = errors.New("transmitter and receiver share a grid square")
	ErrOutOfRange  = errors.New("spot frequency outside prediction range")
	ErrMissingGrid = errors.New("spot has no grid locator")
)

// =============================================================================
// Spot
// =============================================================================

// Spot is one WSPRnet archive row.
type Spot struct {
	SpotID       uint64    // WSPRnet spot ID
	Timestamp    time.Time // UTC
	Reporter     string    // receiving station
	ReporterGrid string
	SNR          int8   // dB in 2500 Hz
	Frequency    uint64 // Hz
	Callsign     string // transmitting station
	Grid         string
	Power        int8   // dBm
	Drift        int8   // Hz/min
	Distance     uint32 // km, as reported
	Azimuth      uint16
	Band         int32 // ADIF band ID derived from Frequency
	Version      string
	Code         uint8
	ColumnCount  uint8
}

// FrequencyMHz returns the spot frequency in MHz.
func (s Spot) FrequencyMHz() float64 {
	return float64(s.Frequency) / 1_000_000.0
}

// PowerWatts converts the reported dBm to watts.
func (s Spot) PowerWatts() float64 {
	return math.Pow(10, (float64(s.Power)-30)/10)
}

// SNRDBHz returns the reported SNR in dB-Hz.
func (s Spot) SNRDBHz() float64 {
	return float64(s.SNR) + BandwidthCorrection
}

// Endpoints resolves both grid locators.
func (s Spot) Endpoints() (tx, rx geo.Point, err error) {
	if s.Grid == "" || s.ReporterGrid == "" {
		return tx, rx, ErrMissingGrid
	}
	if tx, err = geo.ParseGrid(s.Grid); err != nil {
		return tx, rx, fmt.Errorf("tx grid: %w", err)
	}
	if rx, err = geo.ParseGrid(s.ReporterGrid); err != nil {
		return tx, rx, fmt.Errorf("rx grid: %w", err)
	}
	if tx == rx {
		return tx, rx, ErrSameSite
	}
	return tx, rx, nil
}

// Predictable reports whether the spot can be fed to the engine.
func (s Spot) Predictable() error {
	if !bands.InRange(s.FrequencyMHz()) {
		return fmt.Errorf("%w: %.6f MHz", ErrOutOfRange, s.FrequencyMHz())
	}
	_, _, err := s.Endpoints()
	return err
}

// =============================================================================
// Batch
// =============================================================================

// Batch is a reusable buffer of parsed spots.
type Batch struct {
	Spots    []Spot
	Count    int
	Capacity int
}

// NewBatch creates a new batch with specified capacity.
func NewBatch(capacity int) *Batch {
	return &Batch{
		Spots:    make([]Spot, capacity),
		Capacity: capacity,
	}
}

// Reset resets the batch for reuse without reallocating.
func (b *Batch) Reset() {
	b.Count = 0
}

// IsFull returns true if the batch is at capacity.
func (b *Batch) IsFull() bool {
	return b.Count >= b.Capacity
}

// Add adds a spot to the batch. Returns false if batch is full.
func (b *Batch) Add(spot Spot) bool {
	if b.Count >= b.Capacity {
		return false
	}
	b.Spots[b.Count] = spot
	b.Count++
	return true
}

// Filled returns the valid part of the batch.
func (b *Batch) Filled() []Spot {
	return b.Spots[:b.Count]
}

// BatchFullCallback is called when a batch is full during parsing.
// It should process the full batch and return an empty one to continue.
// Return nil to stop parsing.
type BatchFullCallback func(fullBatch *Batch) (*Batch, error)

// =============================================================================
// Parse Statistics
// =============================================================================

// ParseStats holds statistics for a parsing operation.
type ParseStats struct {
	TotalRowsRead      int64
	SuccessfullyParsed int64
	FailedRows         int64
	SkippedEmptyRows   int64
	CleanedCallsigns   int64
}
