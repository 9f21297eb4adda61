package ionmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

var (
	ErrNotLoaded     = errors.New("coefficient tables not loaded")
	ErrAlreadyLoaded = errors.New("coefficient tables already loaded")
)

// FileName returns the canonical coefficient file name for a month
// (ionmap-01.json); compressed variants append .gz or .zst.
func FileName(month int) string {
	return fmt.Sprintf("ionmap-%02d.json", month)
}

// ReadTable decodes one monthly table. The caller selects decompression.
func ReadTable(r io.Reader) (*MonthTable, error) {
	var t MonthTable
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// WriteTable encodes one monthly table as JSON.
func WriteTable(w io.Writer, t *MonthTable) error {
	enc := json.NewEncoder(w)
	return enc.Encode(t)
}

// ReadFile reads a table from path, decompressing .gz (pgzip) and .zst (zstd).
func ReadFile(path string) (*MonthTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	t, err := ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadDir reads ionmap-01..12 from dir. For each month the first existing
// of .json, .json.gz and .json.zst is used.
func LoadDir(dir string) ([]*MonthTable, error) {
	tables := make([]*MonthTable, 0, 12)
	for m := 1; m <= 12; m++ {
		base := filepath.Join(dir, FileName(m))
		var found string
		for _, candidate := range []string{base, base + ".gz", base + ".zst"} {
			if _, err := os.Stat(candidate); err == nil {
				found = candidate
				break
			}
		}
		if found == "" {
			return nil, fmt.Errorf("month %d: no coefficient file in %s", m, dir)
		}
		t, err := ReadFile(found)
		if err != nil {
			return nil, err
		}
		if t.Month != m {
			return nil, fmt.Errorf("%w: %s holds month %d", ErrBadTable, found, t.Month)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// =============================================================================
// Process-wide coefficient cache
// =============================================================================

var (
	cacheMu sync.Mutex
	cache   *Map
)

// Load installs tables as the process-wide map. It may succeed only once.
func Load(tables []*MonthTable) error {
	m, err := New(tables)
	if err != nil {
		return err
	}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return ErrAlreadyLoaded
	}
	cache = m
	return nil
}

// LoadFromDir is Load(LoadDir(dir)).
func LoadFromDir(dir string) error {
	tables, err := LoadDir(dir)
	if err != nil {
		return err
	}
	return Load(tables)
}

// IsLoaded reports whether a process-wide map is installed.
func IsLoaded() bool {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return cache != nil
}

// Current returns the installed map or ErrNotLoaded.
func Current() (*Map, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache == nil {
		return nil, ErrNotLoaded
	}
	return cache, nil
}

// Default returns the installed map, installing the built-in tables on
// first use if nothing was loaded.
func Default() *Map {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache == nil {
		m, err := New(Builtin())
		if err != nil {
			panic(fmt.Sprintf("ionmap: built-in tables invalid: %v", err))
		}
		cache = m
	}
	return cache
}
