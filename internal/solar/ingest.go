package solar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
)

// =============================================================================
// Source formats
// =============================================================================

// Format identifies a solar index source file.
type Format int

const (
	FormatUnknown Format = iota
	FormatSIDC           // sidc_YYYY.csv: YYYY;MM;DD;decimal_year;SSN;std_dev;observations;flag
	FormatSFIJSON        // NOAA monthly indices JSON array
)

func (f Format) String() string {
	switch f {
	case FormatSIDC:
		return "sidc"
	case FormatSFIJSON:
		return "sfi_json"
	}
	return "unknown"
}

var ErrUnknownFormat = errors.New("unknown solar data format")

// DetectFormat classifies a file by name, using head (the first bytes of the
// file) to confirm JSON content.
func DetectFormat(path string, head []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))

	if strings.HasPrefix(base, "sidc_") && ext == ".csv" {
		return FormatSIDC
	}
	if ext == ".json" || (strings.Contains(base, "flux") && ext == ".txt") {
		if trimmed := bytes.TrimSpace(head); len(trimmed) > 0 && trimmed[0] == '[' {
			return FormatSFIJSON
		}
	}
	return FormatUnknown
}

// Daily is one row of the raw indices table.
type Daily struct {
	Date         time.Time // UTC midnight
	ObservedFlux float32   // SFU, 0 when unknown
	AdjustedFlux float32
	SSN          float32 // 0 when unknown
	Source       string
}

// ParseSIDC reads SILSO daily sunspot numbers. Malformed lines and SILSO's
// -1 missing-value marker are skipped.
func ParseSIDC(r io.Reader, source string) ([]Daily, error) {
	var out []Daily
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ";")
		if len(fields) < 5 {
			continue
		}

		year, _ := strconv.Atoi(strings.TrimSpace(fields[0]))
		month, _ := strconv.Atoi(strings.TrimSpace(fields[1]))
		day, _ := strconv.Atoi(strings.TrimSpace(fields[2]))
		ssn, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 32)
		if err != nil || ssn < 0 {
			continue
		}
		if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}

		out = append(out, Daily{
			Date:   time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
			SSN:    float32(ssn),
			Source: source,
		})
	}
	return out, scanner.Err()
}

// sfiRecord is one element of the NOAA indices JSON array.
type sfiRecord struct {
	TimeTag      string  `json:"time-tag"`
	SSN          float64 `json:"ssn"`
	SmoothedSSN  float64 `json:"smoothed_ssn"`
	F107         float64 `json:"f10.7"`
	SmoothedF107 float64 `json:"smoothed_f10.7"`
}

// ParseSFIJSON reads NOAA monthly indices. Each "YYYY-MM" entry is stored
// on the 15th; negative values become 0.
func ParseSFIJSON(r io.Reader, source string) ([]Daily, error) {
	var records []sfiRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}

	out := make([]Daily, 0, len(records))
	for _, rec := range records {
		t, err := time.Parse("2006-01", rec.TimeTag)
		if err != nil || t.Year() < 1900 || t.Year() > 2100 {
			continue
		}
		out = append(out, Daily{
			Date:         time.Date(t.Year(), t.Month(), 15, 0, 0, 0, 0, time.UTC),
			ObservedFlux: float32(max(rec.F107, 0)),
			AdjustedFlux: float32(max(rec.SmoothedF107, 0)),
			SSN:          float32(max(rec.SSN, 0)),
			Source:       source,
		})
	}
	return out, nil
}

// Parse reads r in format f.
func Parse(f Format, r io.Reader, source string) ([]Daily, error) {
	switch f {
	case FormatSIDC:
		return ParseSIDC(r, source)
	case FormatSFIJSON:
		return ParseSFIJSON(r, source)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, source)
}

// =============================================================================
// Columnar insert
// =============================================================================

// IndexBatch holds column data for a native insert into the raw indices
// table.
type IndexBatch struct {
	Date         *proto.ColDate32
	Time         *proto.ColDateTime
	ObservedFlux *proto.ColFloat32
	AdjustedFlux *proto.ColFloat32
	SSN          *proto.ColFloat32
	SourceFile   *proto.ColStr
}

func NewIndexBatch() *IndexBatch {
	return &IndexBatch{
		Date:         new(proto.ColDate32),
		Time:         new(proto.ColDateTime),
		ObservedFlux: new(proto.ColFloat32),
		AdjustedFlux: new(proto.ColFloat32),
		SSN:          new(proto.ColFloat32),
		SourceFile:   new(proto.ColStr),
	}
}

func (b *IndexBatch) Reset() {
	b.Date.Reset()
	b.Time.Reset()
	b.ObservedFlux.Reset()
	b.AdjustedFlux.Reset()
	b.SSN.Reset()
	b.SourceFile.Reset()
}

func (b *IndexBatch) Len() int {
	return b.Date.Rows()
}

func (b *IndexBatch) Input() proto.Input {
	return proto.Input{
		{Name: "date", Data: b.Date},
		{Name: "time", Data: b.Time},
		{Name: "observed_flux", Data: b.ObservedFlux},
		{Name: "adjusted_flux", Data: b.AdjustedFlux},
		{Name: "ssn", Data: b.SSN},
		{Name: "source_file", Data: b.SourceFile},
	}
}

func (b *IndexBatch) Add(rows ...Daily) {
	for _, d := range rows {
		b.Date.Append(d.Date)
		b.Time.Append(d.Date)
		b.ObservedFlux.Append(d.ObservedFlux)
		b.AdjustedFlux.Append(d.AdjustedFlux)
		b.SSN.Append(d.SSN)
		b.SourceFile.Append(d.Source)
	}
}

// CreateTableSQL returns DDL for the raw indices table IndexStore reads.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	date          Date32,
	time          DateTime,
	observed_flux Float32,
	adjusted_flux Float32,
	ssn           Float32,
	source_file   LowCardinality(String)
) ENGINE = ReplacingMergeTree
ORDER BY (date, source_file)`, table)
}

// doer is the subset of *ch.Client the loader needs.
type doer interface {
	Do(ctx context.Context, q ch.Query) error
}

// Flush inserts the batch into table and resets it.
func Flush(ctx context.Context, conn doer, table string, batch *IndexBatch) error {
	n := batch.Len()
	if n == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s (date, time, observed_flux, adjusted_flux, ssn, source_file) VALUES", table)
	if err := conn.Do(ctx, ch.Query{Body: query, Input: batch.Input()}); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", n, table, err)
	}
	batch.Reset()
	return nil
}
