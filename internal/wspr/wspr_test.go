package wspr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-hf-predict/internal/bands"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
)

const archive = `1001,1710525600,K1ABC,FN42,-12,14.097100,W7XYZ,DN31,37,0,3500,70,14,2.6.1,0
1002,1710525600,EA5\\DL2OBT,IM98,-20,7.040100,W7'XYZ,DN31,23,-1,8600,45,7,2.6.1,0
not,a,row
1003,1710525600,K1ABC,FN42,-5,50.294500,W7XYZ,DN31,30,0,3500,70,50,2.6.1,0

1004,1710525600,K1ABC,FN42,-25,14.097100,W7XYZ,DN31,37,0,3500,70,14,2.6.1,0,43.1,-71.0,43.6,-116.2
`

func TestParseCsvRecord(t *testing.T) {
	var stats ParseStats
	rec := strings.Split("1001,1710525600,K1ABC,FN42,-12,14.097100,W7XYZ,DN31,37,0,3500,70,14,2.6.1,0", ",")
	s, err := ParseCsvRecord(rec, &stats)
	require.NoError(t, err)

	assert.Equal(t, uint64(1001), s.SpotID)
	assert.Equal(t, time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC), s.Timestamp)
	assert.Equal(t, uint64(14_097_100), s.Frequency)
	assert.Equal(t, bands.Band20m, s.Band)
	assert.Equal(t, int8(37), s.Power)
	assert.InDelta(t, 5.01, s.PowerWatts(), 0.01)
	assert.InDelta(t, 21.98, s.SNRDBHz(), 1e-9)
	assert.Equal(t, uint8(15), s.ColumnCount)

	_, err = ParseCsvRecord(rec[:10], &stats)
	assert.Error(t, err)
}

func TestParseStreamBatchRotation(t *testing.T) {
	var stats ParseStats
	var full []Spot
	batch, err := ParseStream(strings.NewReader(archive), NewBatch(2), &stats, func(b *Batch) (*Batch, error) {
		full = append(full, b.Filled()...)
		b.Reset()
		return b, nil
	})
	require.NoError(t, err)
	full = append(full, batch.Filled()...)

	require.Len(t, full, 4)
	assert.Equal(t, int64(4), stats.SuccessfullyParsed)
	assert.Equal(t, int64(1), stats.FailedRows)
	assert.Equal(t, "EA5/DL2OBT", full[1].Reporter)
	assert.Equal(t, "W7XYZ", full[1].Callsign)
	assert.Equal(t, int64(2), stats.CleanedCallsigns)
	assert.Equal(t, uint8(19), full[3].ColumnCount)
}

func TestOpenFileGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsprspots-2024-03.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(archive))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	var stats ParseStats
	batch, err := ParseStream(r, NewBatch(16), &stats, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Count)
}

func TestSpotPredictable(t *testing.T) {
	s := Spot{Frequency: 14_097_100, Grid: "DN31", ReporterGrid: "FN42"}
	assert.NoError(t, s.Predictable())

	tx, rx, err := s.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 41.5, Lon: -113}, tx)
	assert.Equal(t, geo.Point{Lat: 42.5, Lon: -71}, rx)

	s.Frequency = 50_294_500
	assert.ErrorIs(t, s.Predictable(), ErrOutOfRange)
	s.Frequency = 14_097_100
	s.ReporterGrid = "dn31"
	assert.ErrorIs(t, s.Predictable(), ErrSameSite)
	s.ReporterGrid = ""
	assert.ErrorIs(t, s.Predictable(), ErrMissingGrid)
}

// tablePredictor returns a fixed SNR per frequency and no mode elsewhere.
type tablePredictor struct {
	snr map[float64]float64
}

func (tp tablePredictor) Predict(_ context.Context, req predict.Request) (*predict.Result, error) {
	p := predict.Prediction{}
	if snr, ok := tp.snr[req.Frequencies[0]]; ok {
		p.HasMode = true
		p.SNR.Median = snr
		p.Reliability = 0.9
	}
	return &predict.Result{Predictions: []predict.Prediction{p}}, nil
}

func TestValidatorBatch(t *testing.T) {
	fp := tablePredictor{snr: map[float64]float64{14.0971: 24.98, 7.0401: 10.98}}
	v := NewValidator(fp, 100, 2)

	batch := NewBatch(8)
	for i := 0; i < 3; i++ {
		batch.Add(Spot{SpotID: uint64(i), SNR: -12, Frequency: 14_097_100, Grid: "DN31", ReporterGrid: "FN42"})
	}
	batch.Add(Spot{SNR: -20, Frequency: 7_040_100, Grid: "DN31", ReporterGrid: "IM98"})
	batch.Add(Spot{SNR: -5, Frequency: 50_294_500, Grid: "DN31", ReporterGrid: "FN42"})
	batch.Add(Spot{SNR: -5, Frequency: 3_570_100, Grid: "DN31", ReporterGrid: "FN42"})

	var cal Calibration
	for _, c := range v.ProcessBatch(context.Background(), batch) {
		cal.Add(c)
	}
	s := cal.Summary()
	assert.Equal(t, 5, s.Spots)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.NoMode)
	assert.InDelta(t, 4.0/5, s.DecodableFraction, 1e-12)
	assert.InDelta(t, (3*3.0+(-3.0))/4, s.MeanError, 1e-9)
	assert.InDelta(t, 3.0, s.MedianError, 1e-9)
	assert.InDelta(t, 3.0, s.RMSError, 1e-9)
}

func TestValidatorWithEngine(t *testing.T) {
	m, err := ionmap.New(ionmap.Builtin())
	require.NoError(t, err)
	v := NewValidator(predict.NewEngine(m, predict.DefaultConfig()), 100, 1)

	spot := Spot{
		Timestamp:    time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC),
		SNR:          -12,
		Frequency:    14_097_100,
		Power:        37,
		Grid:         "DN31",
		ReporterGrid: "FN42",
	}
	c := v.Compare(context.Background(), spot)
	require.NoError(t, c.Err)
	assert.InDelta(t, 21.98, c.Observed, 1e-9)
	assert.GreaterOrEqual(t, c.Reliability, 0.0)
	assert.LessOrEqual(t, c.Reliability, 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBatch(1)
	b.Add(spot)
	out := v.ProcessBatch(ctx, b)
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, context.Canceled)
}

func TestComparisonWriter(t *testing.T) {
	var buf strings.Builder
	w := NewComparisonWriter(&buf)
	spot := Spot{SpotID: 7, Timestamp: time.Unix(1710525600, 0).UTC(), Frequency: 14_097_100, Grid: "DN31", ReporterGrid: "FN42"}
	require.NoError(t, w.Write([]Comparison{
		{Spot: spot, Observed: 22, Predicted: 25, Reliability: 0.9, HasMode: true},
		{Spot: spot, Observed: 22, Err: ErrSameSite},
	}))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "spot_id,timestamp,callsign,grid"))
	assert.Contains(t, lines[1], ",3,")
	assert.Contains(t, lines[2], ErrSameSite.Error())
}
