package wspr

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"
)

// ComparisonRow is the CSV form of a Comparison.
type ComparisonRow struct {
	SpotID      uint64  `csv:"spot_id"`
	Timestamp   int64   `csv:"timestamp"`
	Callsign    string  `csv:"callsign"`
	Grid        string  `csv:"grid"`
	Reporter    string  `csv:"reporter"`
	RxGrid      string  `csv:"rx_grid"`
	Frequency   float64 `csv:"frequency"` // MHz
	Observed    float64 `csv:"observed_db_hz"`
	Predicted   float64 `csv:"predicted_db_hz,omitempty"`
	Residual    float64 `csv:"residual_db,omitempty"`
	Reliability float64 `csv:"reliability"`
	HasMode     bool    `csv:"has_mode"`
	Error       string  `csv:"error,omitempty"`
}

// Row flattens c.
func (c Comparison) Row() ComparisonRow {
	r := ComparisonRow{
		SpotID:      c.Spot.SpotID,
		Timestamp:   c.Spot.Timestamp.Unix(),
		Callsign:    c.Spot.Callsign,
		Grid:        c.Spot.Grid,
		Reporter:    c.Spot.Reporter,
		RxGrid:      c.Spot.ReporterGrid,
		Frequency:   c.Spot.FrequencyMHz(),
		Observed:    c.Observed,
		Reliability: c.Reliability,
		HasMode:     c.HasMode,
	}
	if c.Err != nil {
		r.Error = c.Err.Error()
		return r
	}
	if c.HasMode {
		r.Predicted = c.Predicted
		r.Residual = c.Residual()
	}
	return r
}

// ComparisonWriter streams comparisons as CSV with a header row.
type ComparisonWriter struct {
	cw  *csv.Writer
	enc *csvutil.Encoder
}

// NewComparisonWriter writes the header on the first Write.
func NewComparisonWriter(w io.Writer) *ComparisonWriter {
	cw := csv.NewWriter(w)
	return &ComparisonWriter{cw: cw, enc: csvutil.NewEncoder(cw)}
}

// Write encodes cmps.
func (w *ComparisonWriter) Write(cmps []Comparison) error {
	for i := range cmps {
		if err := w.enc.Encode(cmps[i].Row()); err != nil {
			return fmt.Errorf("comparison %d: %w", cmps[i].Spot.SpotID, err)
		}
	}
	return nil
}

// Flush flushes the underlying CSV writer.
func (w *ComparisonWriter) Flush() error {
	w.cw.Flush()
	return w.cw.Error()
}
