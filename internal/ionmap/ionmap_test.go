package ionmap

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetCache() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

func builtinMap(t *testing.T) *Map {
	t.Helper()
	m, err := New(Builtin())
	require.NoError(t, err)
	return m
}

func TestLegendreKnownValues(t *testing.T) {
	x := 0.5
	p := legendre(4, 2, x)
	assert.InDelta(t, 1.0, p[0][0], 1e-12)
	assert.InDelta(t, x, p[0][1], 1e-12)
	assert.InDelta(t, (3*x*x-1)/2, p[0][2], 1e-12)
	assert.InDelta(t, (35*math.Pow(x, 4)-30*x*x+3)/8, p[0][4], 1e-12)
	assert.InDelta(t, math.Sqrt(1-x*x), p[1][1], 1e-12)
	assert.InDelta(t, 3*(1-x*x), p[2][2], 1e-12)
}

func TestBasisSizes(t *testing.T) {
	assert.Equal(t, 29, SpatialTerms(LatOrder, LonOrder))
	assert.Equal(t, 7, TimeTerms(TimeOrder))
	assert.Len(t, spatialBasis(LatOrder, LonOrder, 0.3, 1.2), 29)
	assert.Len(t, timeBasis(TimeOrder, 0.25), 7)
}

func TestBuiltinTablesValidate(t *testing.T) {
	for _, tbl := range Builtin() {
		require.NoError(t, tbl.Validate(), "month %d", tbl.Month)
	}
}

func TestEvaluateDiurnalAndSolarDependence(t *testing.T) {
	m := builtinMap(t)

	noon, err := m.Evaluate(FoF2, 42.7, -100, 3, 100, 0.5)
	require.NoError(t, err)
	night, err := m.Evaluate(FoF2, 42.7, -100, 3, 100, 0.0)
	require.NoError(t, err)
	quiet, err := m.Evaluate(FoF2, 42.7, -100, 3, 0, 0.5)
	require.NoError(t, err)

	assert.Greater(t, noon.Median, night.Median)
	assert.Greater(t, noon.Median, quiet.Median)
	assert.InDelta(t, 11.5, noon.Median, 2.5)
	assert.False(t, noon.Extrapolated)

	for _, tr := range []Triple{noon, night, quiet} {
		assert.LessOrEqual(t, tr.Low, tr.Median)
		assert.GreaterOrEqual(t, tr.High, tr.Median)
	}
}

func TestEvaluateM3000Range(t *testing.T) {
	m := builtinMap(t)
	for _, lt := range []float64{0, 0.25, 0.5, 0.75} {
		v, err := m.Evaluate(M3000F2, 10, 20, 7, 50, lt)
		require.NoError(t, err)
		assert.Greater(t, v.Median, 2.3)
		assert.Less(t, v.Median, 3.6)
	}
}

func TestEvaluateInterpolatesAndExtrapolates(t *testing.T) {
	m := builtinMap(t)
	v0, _ := m.Evaluate(FoF2, 30, 0, 6, 0, 0.5)
	v100, _ := m.Evaluate(FoF2, 30, 0, 6, 100, 0.5)
	v50, err := m.Evaluate(FoF2, 30, 0, 6, 50, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, (v0.Median+v100.Median)/2, v50.Median, 1e-9)

	v200, err := m.Evaluate(FoF2, 30, 0, 6, 200, 0.5)
	require.NoError(t, err)
	assert.True(t, v200.Extrapolated)
	assert.InDelta(t, v100.Median+(v100.Median-v0.Median), v200.Median, 1e-9)
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	m := builtinMap(t)
	_, err := m.Evaluate(FoF2, 0, 0, 13, 50, 0.5)
	assert.ErrorIs(t, err, ErrInvalidMonth)
	_, err = m.Evaluate(Kind(7), 0, 0, 1, 50, 0.5)
	assert.ErrorIs(t, err, ErrInvalidKind)
	_, err = m.Evaluate(FoF2, 95, 0, 1, 50, 0.5)
	assert.Error(t, err)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	m := builtinMap(t)
	a, _ := m.Evaluate(FoF2, -33.9, 151.2, 11, 87, 0.37)
	b, _ := m.Evaluate(FoF2, -33.9, 151.2, 11, 87, 0.37)
	assert.Equal(t, a, b)
}

func TestMapIsolatedFromTableMutation(t *testing.T) {
	tables := Builtin()
	m, err := New(tables)
	require.NoError(t, err)
	before, err := m.Evaluate(FoF2, 40, -100, 3, 100, 0.5)
	require.NoError(t, err)

	got, err := m.Table(3)
	require.NoError(t, err)
	for _, kt := range got.Kinds {
		for _, row := range kt.Median {
			row[0] *= 10
		}
		kt.LowRatio[0] = 0
	}
	got.Levels[0] = -1
	for _, kt := range tables[2].Kinds {
		kt.Median[0][0] = 0
	}

	after, err := m.Evaluate(FoF2, 40, -100, 3, 100, 0.5)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	again, err := m.Table(3)
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, again.Levels[0])
	assert.NoError(t, again.Validate())

	_, err = m.Table(13)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestNewRejectsMissingAndDuplicateMonths(t *testing.T) {
	tables := Builtin()
	_, err := New(tables[:11])
	assert.ErrorIs(t, err, ErrBadTable)

	dup := append(Builtin()[:11], BuiltinTable(1))
	_, err = New(dup)
	assert.ErrorIs(t, err, ErrBadTable)
}

func TestReadTableRejectsWrongVersion(t *testing.T) {
	tbl := BuiltinTable(4)
	tbl.Version = 99
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, tbl))
	_, err := ReadTable(&buf)
	assert.ErrorIs(t, err, ErrBadTable)
}

func writeDir(t *testing.T, dir string, ext string) {
	t.Helper()
	for _, tbl := range Builtin() {
		path := filepath.Join(dir, FileName(tbl.Month)+ext)
		f, err := os.Create(path)
		require.NoError(t, err)
		switch ext {
		case ".gz":
			gz := pgzip.NewWriter(f)
			require.NoError(t, WriteTable(gz, tbl))
			require.NoError(t, gz.Close())
		case ".zst":
			zw, err := zstd.NewWriter(f)
			require.NoError(t, err)
			require.NoError(t, WriteTable(zw, tbl))
			require.NoError(t, zw.Close())
		default:
			require.NoError(t, WriteTable(f, tbl))
		}
		require.NoError(t, f.Close())
	}
}

func TestLoadDirFormats(t *testing.T) {
	for _, ext := range []string{"", ".gz", ".zst"} {
		t.Run("ext"+ext, func(t *testing.T) {
			dir := t.TempDir()
			writeDir(t, dir, ext)
			tables, err := LoadDir(dir)
			require.NoError(t, err)
			require.Len(t, tables, 12)

			loaded, err := New(tables)
			require.NoError(t, err)
			want, _ := builtinMap(t).Evaluate(FoF2, 51.5, -0.1, 9, 75, 0.6)
			got, err := loaded.Evaluate(FoF2, 51.5, -0.1, 9, 75, 0.6)
			require.NoError(t, err)
			assert.InDelta(t, want.Median, got.Median, 1e-12)
		})
	}
}

func TestLoadDirMissingMonth(t *testing.T) {
	dir := t.TempDir()
	writeDir(t, dir, "")
	require.NoError(t, os.Remove(filepath.Join(dir, FileName(5))))
	_, err := LoadDir(dir)
	assert.Error(t, err)
}

func TestSingletonLifecycle(t *testing.T) {
	resetCache()
	defer resetCache()

	assert.False(t, IsLoaded())
	_, err := Current()
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, Load(Builtin()))
	assert.True(t, IsLoaded())
	assert.ErrorIs(t, Load(Builtin()), ErrAlreadyLoaded)

	m, err := Current()
	require.NoError(t, err)
	assert.Same(t, m, Default())
}

func TestDefaultConcurrentInit(t *testing.T) {
	resetCache()
	defer resetCache()

	var wg sync.WaitGroup
	maps := make([]*Map, 16)
	for i := range maps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			maps[i] = Default()
		}(i)
	}
	wg.Wait()
	for _, m := range maps {
		assert.Same(t, maps[0], m)
	}
}
