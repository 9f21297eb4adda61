// Package export writes flat prediction records to CSV, gzip-compressed CSV
// and Parquet files.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/klauspost/pgzip"
	"github.com/parquet-go/parquet-go"

	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Format selects the file encoding.
type Format int

const (
	CSV Format = iota
	CSVGzip
	Parquet
)

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case CSVGzip:
		return "csv.gz"
	case Parquet:
		return "parquet"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatFor picks the format from a file name's extension.
func FormatFor(path string) (Format, error) {
	p := strings.ToLower(path)
	switch {
	case strings.HasSuffix(p, ".csv.gz"):
		return CSVGzip, nil
	case strings.HasSuffix(p, ".csv"):
		return CSV, nil
	case strings.HasSuffix(p, ".parquet"):
		return Parquet, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// WriteCSV encodes recs with a header row.
func WriteCSV(w io.Writer, recs []predict.FlatRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(recs) == 0 {
		if err := enc.EncodeHeader(predict.FlatRecord{}); err != nil {
			return fmt.Errorf("csv header: %w", err)
		}
	}
	for i := range recs {
		if err := enc.Encode(recs[i]); err != nil {
			return fmt.Errorf("csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVGzip encodes recs as CSV through a parallel gzip writer.
func WriteCSVGzip(w io.Writer, recs []predict.FlatRecord) error {
	gz := pgzip.NewWriter(w)
	if err := gz.SetConcurrency(256*1024, runtime.NumCPU()); err != nil {
		return fmt.Errorf("pgzip: %w", err)
	}
	if err := WriteCSV(gz, recs); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// WriteParquet encodes recs as a single Parquet file.
func WriteParquet(w io.Writer, recs []predict.FlatRecord) error {
	pw := parquet.NewGenericWriter[predict.FlatRecord](w)
	if _, err := pw.Write(recs); err != nil {
		pw.Close()
		return fmt.Errorf("parquet write: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}
	return nil
}

// Write encodes recs in format f.
func Write(w io.Writer, f Format, recs []predict.FlatRecord) error {
	switch f {
	case CSV:
		return WriteCSV(w, recs)
	case CSVGzip:
		return WriteCSVGzip(w, recs)
	case Parquet:
		return WriteParquet(w, recs)
	}
	return fmt.Errorf("%w: %s", ErrUnknownFormat, f)
}

// WriteFile creates path and writes recs in the format its extension names.
func WriteFile(path string, recs []predict.FlatRecord) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(out, 1<<20)
	if err := Write(bw, f, recs); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}

// ReadParquet decodes a file written by WriteParquet.
func ReadParquet(path string) ([]predict.FlatRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[predict.FlatRecord](pf)
	defer reader.Close()

	out := make([]predict.FlatRecord, reader.NumRows())
	n, err := reader.Read(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parquet read %s: %w", path, err)
	}
	return out[:n], nil
}

// ReadCSV decodes CSV written by WriteCSV; gzip input is detected by the
// caller passing a pgzip reader.
func ReadCSV(r io.Reader) ([]predict.FlatRecord, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	var out []predict.FlatRecord
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv decode: %w", err)
	}
	return out, nil
}
