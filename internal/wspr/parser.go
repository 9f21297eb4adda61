package wspr

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/KI7MT/ki7mt-hf-predict/internal/bands"
)

// =============================================================================
// CSV Parsing Constants
// =============================================================================

const (
	// Error throttling: don't spam logs with parse errors
	MaxErrorsToLog = 10

	// CSV column indices (WSPRnet archive format)
	ColID           = 0
	ColTimestamp    = 1
	ColReporter     = 2
	ColReporterGrid = 3
	ColSNR          = 4
	ColFrequency    = 5
	ColCallsign     = 6
	ColGrid         = 7
	ColPower        = 8
	ColDrift        = 9
	ColDistance     = 10
	ColAzimuth      = 11
	ColBand         = 12
	ColVersion      = 13
	ColCode         = 14

	// Minimum columns for valid WSPR record
	MinColumns = 15
)

// =============================================================================
// File Operations
// =============================================================================

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

// OpenFile opens a WSPRnet archive, decompressing .gz files.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return gzipFile{Reader: gz, f: f}, nil
}

// =============================================================================
// CSV Parsing with Batch Rotation
// =============================================================================

// ParseStream parses WSPRnet CSV from reader into batch. When the batch
// fills, onBatchFull receives it and returns the batch to continue with.
// The final partial batch is left for the caller. With a nil callback
// parsing stops once the batch is full.
func ParseStream(reader io.Reader, batch *Batch, stats *ParseStats, onBatchFull BatchFullCallback) (*Batch, error) {
	csvReader := csv.NewReader(reader)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1 // Variable field count (15-19 columns)

	errorCount := 0

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.FailedRows++
			errorCount++
			if errorCount <= MaxErrorsToLog {
				log.Printf("CSV read error (row %d): %v", stats.TotalRowsRead, err)
			}
			continue
		}

		stats.TotalRowsRead++

		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			stats.SkippedEmptyRows++
			continue
		}

		spot, err := ParseCsvRecord(record, stats)
		if err != nil {
			stats.FailedRows++
			errorCount++
			if errorCount <= MaxErrorsToLog {
				log.Printf("Parse error (row %d): %v", stats.TotalRowsRead, err)
			}
			continue
		}

		stats.SuccessfullyParsed++

		if !batch.Add(spot) {
			if onBatchFull == nil {
				return batch, nil
			}
			newBatch, err := onBatchFull(batch)
			if err != nil {
				return batch, err
			}
			if newBatch == nil {
				return nil, nil // Callback requested stop
			}
			batch = newBatch
			batch.Add(spot)
		}
	}

	if errorCount > MaxErrorsToLog {
		log.Printf("... and %d more parse errors (suppressed)", errorCount-MaxErrorsToLog)
	}

	return batch, nil
}

// =============================================================================
// Record Parsing
// =============================================================================

// ParseCsvRecord parses a single CSV record into a Spot.
func ParseCsvRecord(record []string, stats *ParseStats) (Spot, error) {
	if len(record) < MinColumns {
		return Spot{}, fmt.Errorf("insufficient columns: got %d, need %d", len(record), MinColumns)
	}

	var spot Spot
	var err error

	spot.SpotID, err = parseUint64(record[ColID])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid ID: %w", err)
	}

	ts, err := parseInt64(record[ColTimestamp])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	spot.Timestamp = time.Unix(ts, 0).UTC()

	spot.Reporter = cleanCallsign(record[ColReporter], stats)
	spot.ReporterGrid = strings.TrimSpace(record[ColReporterGrid])

	spot.SNR, err = parseInt8(record[ColSNR])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid SNR: %w", err)
	}

	// WSPRnet archives store frequency in MHz with 6 decimal places
	freqMHz, err := parseFloat64(record[ColFrequency])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid frequency: %w", err)
	}
	spot.Frequency = uint64(freqMHz*1_000_000 + 0.5)

	spot.Callsign = cleanCallsign(record[ColCallsign], stats)
	spot.Grid = strings.TrimSpace(record[ColGrid])

	spot.Power, err = parseInt8(record[ColPower])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid power: %w", err)
	}

	spot.Drift, err = parseInt8(record[ColDrift])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid drift: %w", err)
	}

	spot.Distance, err = parseUint32(record[ColDistance])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid distance: %w", err)
	}

	spot.Azimuth, err = parseUint16(record[ColAzimuth])
	if err != nil {
		return Spot{}, fmt.Errorf("invalid azimuth: %w", err)
	}

	// Column 12 (band) is ignored; derived from frequency instead
	spot.Band, _ = bands.Classify(freqMHz)

	spot.Version = strings.TrimSpace(record[ColVersion])
	spot.Code, _ = parseUint8(record[ColCode])
	spot.ColumnCount = uint8(len(record))

	return spot, nil
}

// callsignCleaner maps portable-call double backslashes to "/" and strips
// quotes and stray backslashes.
var callsignCleaner = strings.NewReplacer(`\\`, "/", `"`, "", "'", "", `\`, "")

func cleanCallsign(s string, stats *ParseStats) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, `"'\`) {
		return s
	}
	if stats != nil {
		stats.CleanedCallsigns++
	}
	return callsignCleaner.Replace(s)
}

// =============================================================================
// Numeric Parsing Helpers
// =============================================================================

func parseUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseInt64(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseUint32(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseUint16(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), err
}

func parseUint8(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), err
}

func parseInt8(s string) (int8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 8)
	return int8(v), err
}

func parseFloat64(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
