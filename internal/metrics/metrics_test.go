package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObservePrediction("F2")
	c.ObservePrediction("F2")
	c.ObservePrediction("")
	c.ObserveTarget(false, 20*time.Millisecond)
	c.ObserveTarget(true, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Predictions.WithLabelValues("F2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Predictions.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Targets.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Targets.WithLabelValues(StatusFailed)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.TargetDurations))

	c.TargetStarted()
	c.TargetStarted()
	c.TargetDone()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ScanInFlight))
}

func TestCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	require.NoError(t, err)
	b, err := NewCollector(reg)
	require.NoError(t, err)

	a.ObservePrediction("E")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Predictions.WithLabelValues("E")))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObservePrediction("F2")
		c.ObserveTarget(true, time.Second)
		c.TargetStarted()
		c.TargetDone()
	})
	assert.NotNil(t, c.Handler())
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveTarget(false, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `hfpredict_scan_targets_total{status="ok"} 1`))
}
