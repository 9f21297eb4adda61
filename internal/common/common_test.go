package common

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/ki7mt-hf-predict/internal/noise"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	def := DefaultConfig()
	assert.Equal(t, def.MinElevation, cfg.MinElevation)
	assert.Equal(t, def.TxPowerWatts, cfg.TxPowerWatts)
	assert.Equal(t, def.ClickHousePort, cfg.ClickHousePort)
	assert.Equal(t, filepath.Join(cfg.DataDir, "ionmap"), cfg.IonmapDir())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hfp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_elevation: 5\ntx_power: 400\nnoise_environment: rural\n"), 0o644))

	t.Setenv("HFP_TX_POWER", "25")
	t.Setenv("HFP_COEFFICIENT_DIR", "/srv/ionmap")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.MinElevation)
	assert.Equal(t, 25.0, cfg.TxPowerWatts)
	assert.Equal(t, "rural", cfg.NoiseEnvironment)
	assert.Equal(t, "/srv/ionmap", cfg.IonmapDir())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("HFP_MIN_ELEVATION", "95")
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClickHouseAddr(t *testing.T) {
	c := &Config{ClickHouseHost: "10.0.0.5", ClickHousePort: 9440}
	assert.Equal(t, "10.0.0.5:9440", c.ClickHouseAddr())
}

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddPredictions(10)
			s.AddTarget(i%4 == 0)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(80), s.GetTotalPredictions())
	assert.Equal(t, uint64(8), s.GetTotalTargets())
	assert.Equal(t, uint64(2), s.GetFailedTargets())

	s.Reset()
	assert.Zero(t, s.GetTotalPredictions())
	assert.Zero(t, s.GetFailedTargets())
}

func TestStatsStatusLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewStats()
	s.SetOutput(&buf)
	s.Reset()
	s.AddPredictions(500)
	s.AddTarget(false)
	s.printStatus(s.lastTime.Add(time.Second))

	assert.Contains(t, buf.String(), "[Progress] Rate: 500 pred/s")
	assert.Contains(t, buf.String(), "Total: 500 predictions")

	buf.Reset()
	s.SetSilent(true)
	s.printStatus(s.lastTime.Add(time.Second))
	assert.Empty(t, buf.String())
}

func TestEngineConfig(t *testing.T) {
	c := DefaultConfig()
	c.MinElevation = 6
	c.Workers = 3
	ec := c.EngineConfig()
	assert.InDelta(t, 6*math.Pi/180, ec.MinElevation, 1e-12)
	assert.Equal(t, 3, ec.Workers)
	assert.Equal(t, 48.0, ec.RequiredSNR)

	env, err := c.Environment()
	require.NoError(t, err)
	assert.Equal(t, noise.Residential, env)
}

func TestIonmapFallsBackToBuiltin(t *testing.T) {
	c := DefaultConfig()
	c.DataDir = t.TempDir()
	m, err := c.Ionmap()
	require.NoError(t, err)
	assert.NotNil(t, m)

	c.CoefficientDir = filepath.Join(t.TempDir(), "missing")
	_, err = c.Ionmap()
	assert.Error(t, err)
}
