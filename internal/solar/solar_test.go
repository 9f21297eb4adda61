package solar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFluxConversionRoundTrip(t *testing.T) {
	assert.InDelta(t, MinFlux, FluxFromSSN(0), 1e-12)
	assert.Zero(t, SSNFromFlux(60))
	for _, ssn := range []float64{0, 10, 50, 100, 150, 250} {
		assert.InDelta(t, ssn, SSNFromFlux(FluxFromSSN(ssn)), 1e-9)
	}
	assert.InDelta(t, 145.4, FluxFromSSN(100), 0.1)
}

func series(start time.Time, ssn ...float64) []Monthly {
	out := make([]Monthly, len(ssn))
	for i, v := range ssn {
		out[i] = Monthly{Month: start.AddDate(0, i, 0), SSN: v}
	}
	return out
}

func TestSmoothed(t *testing.T) {
	start := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	flat := series(start, 80, 80, 80, 80, 80, 80, 80, 80, 80, 80, 80, 80, 80)
	s, ok := Smoothed(flat, 6)
	require.True(t, ok)
	assert.InDelta(t, 80, s, 1e-12)

	_, ok = Smoothed(flat, 5)
	assert.False(t, ok)

	ends := series(start, 200, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 200)
	s, _ = Smoothed(ends, 6)
	assert.InDelta(t, 200.0/12, s, 1e-12)

	assert.Equal(t, 80.0, Effective(flat[:3], 1))
}

type fakeConn struct {
	rows  []monthRow
	err   error
	query string
	args  []any
}

func (f *fakeConn) Select(_ context.Context, dest any, query string, args ...any) error {
	f.query, f.args = query, args
	if f.err != nil {
		return f.err
	}
	*(dest.(*[]monthRow)) = f.rows
	return nil
}

func TestIndexStoreSSNFor(t *testing.T) {
	start := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	var rows []monthRow
	for i := 0; i < 13; i++ {
		rows = append(rows, monthRow{Month: start.AddDate(0, i, 0), SSN: 120, SFI: 160})
	}
	fc := &fakeConn{rows: rows}
	s := newIndexStore(fc, "")

	ssn, err := s.SSNFor(context.Background(), time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 120, ssn, 1e-9)
	assert.Contains(t, fc.query, DefaultTable)
	require.Len(t, fc.args, 2)
	assert.Equal(t, start, fc.args[0])

	_, err = s.SSNFor(context.Background(), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestIndexStoreFluxFallback(t *testing.T) {
	month := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	fc := &fakeConn{rows: []monthRow{{Month: month, SSN: 0, SFI: FluxFromSSN(90)}}}
	ssn, err := newIndexStore(fc, "lab.indices").SSNFor(context.Background(), month)
	require.NoError(t, err)
	assert.InDelta(t, 90, ssn, 1e-9)
	assert.Contains(t, fc.query, "lab.indices")
}

func TestIndexStoreError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := newIndexStore(&fakeConn{err: boom}, "").Monthly(context.Background(), time.Now(), time.Now())
	assert.ErrorIs(t, err, boom)
}
