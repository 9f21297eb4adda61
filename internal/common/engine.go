package common

import (
	"fmt"
	"log"
	"math"
	"os"

	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
	"github.com/KI7MT/ki7mt-hf-predict/internal/noise"
	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
)

// EngineConfig maps the tool configuration onto engine settings.
func (c *Config) EngineConfig() predict.Config {
	ec := predict.DefaultConfig()
	ec.MinElevation = c.MinElevation * math.Pi / 180
	if c.RequiredSNR > 0 {
		ec.RequiredSNR = c.RequiredSNR
	}
	if c.Workers > 0 {
		ec.Workers = c.Workers
	}
	return ec
}

// Environment parses NoiseEnvironment.
func (c *Config) Environment() (noise.Environment, error) {
	return noise.ParseEnvironment(c.NoiseEnvironment)
}

// Ionmap installs the coefficient tables. An explicit CoefficientDir must
// load; the DataDir default falls back to the built-in tables when absent.
func (c *Config) Ionmap() (*ionmap.Map, error) {
	dir := c.IonmapDir()
	if c.CoefficientDir == "" {
		if _, err := os.Stat(dir); err != nil {
			log.Printf("[ionmap] %s not found, using built-in tables", dir)
			return ionmap.Default(), nil
		}
	}
	if err := ionmap.LoadFromDir(dir); err != nil {
		return nil, fmt.Errorf("ionmap %s: %w", dir, err)
	}
	log.Printf("[ionmap] loaded coefficient tables from %s", dir)
	return ionmap.Current()
}

// NewEngine builds a prediction engine from the configuration.
func (c *Config) NewEngine() (*predict.Engine, error) {
	m, err := c.Ionmap()
	if err != nil {
		return nil, err
	}
	return predict.NewEngine(m, c.EngineConfig()), nil
}
