// Package common provides shared configuration and telemetry for the
// prediction tools.
package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when reading overrides from the
// environment, e.g. HFP_MIN_ELEVATION.
const EnvPrefix = "HFP"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds common configuration for all applications.
type Config struct {
	ClickHouseHost     string `mapstructure:"clickhouse_host"`
	ClickHousePort     int    `mapstructure:"clickhouse_port"`
	ClickHouseDatabase string `mapstructure:"clickhouse_database"`
	ClickHouseUser     string `mapstructure:"clickhouse_user"`
	ClickHousePassword string `mapstructure:"clickhouse_password"`
	DataDir            string `mapstructure:"data_dir"`
	LogLevel           string `mapstructure:"log_level"`

	// Prediction defaults
	CoefficientDir   string  `mapstructure:"coefficient_dir"`
	MinElevation     float64 `mapstructure:"min_elevation"` // degrees
	RequiredSNR      float64 `mapstructure:"required_snr"`  // dB-Hz
	TxPowerWatts     float64 `mapstructure:"tx_power"`
	NoiseEnvironment string  `mapstructure:"noise_environment"`
	Workers          int     `mapstructure:"workers"`
	MetricsAddr      string  `mapstructure:"metrics_addr"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     9000,
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "propagation"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		DataDir:            getEnv("KI7MT_DATA_DIR", "/var/lib/ki7mt-hf-predict"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		MinElevation:     3,
		RequiredSNR:      48,
		TxPowerWatts:     100,
		NoiseEnvironment: "residential",
		Workers:          0,
	}
}

// LoadConfig layers the defaults, an optional YAML/JSON/TOML file and HFP_
// environment variables, in that order.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("clickhouse_host", c.ClickHouseHost)
	v.SetDefault("clickhouse_port", c.ClickHousePort)
	v.SetDefault("clickhouse_database", c.ClickHouseDatabase)
	v.SetDefault("clickhouse_user", c.ClickHouseUser)
	v.SetDefault("clickhouse_password", c.ClickHousePassword)
	v.SetDefault("data_dir", c.DataDir)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("coefficient_dir", c.CoefficientDir)
	v.SetDefault("min_elevation", c.MinElevation)
	v.SetDefault("required_snr", c.RequiredSNR)
	v.SetDefault("tx_power", c.TxPowerWatts)
	v.SetDefault("noise_environment", c.NoiseEnvironment)
	v.SetDefault("workers", c.Workers)
	v.SetDefault("metrics_addr", c.MetricsAddr)
}

// Validate rejects values no tool can run with.
func (c *Config) Validate() error {
	switch {
	case c.MinElevation < 0 || c.MinElevation >= 90:
		return fmt.Errorf("%w: min_elevation %g", ErrInvalidConfig, c.MinElevation)
	case c.TxPowerWatts <= 0:
		return fmt.Errorf("%w: tx_power %g", ErrInvalidConfig, c.TxPowerWatts)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	case c.ClickHousePort <= 0 || c.ClickHousePort > 65535:
		return fmt.Errorf("%w: clickhouse_port %d", ErrInvalidConfig, c.ClickHousePort)
	}
	return nil
}

// ClickHouseAddr returns host:port for the native protocol.
func (c *Config) ClickHouseAddr() string {
	return fmt.Sprintf("%s:%d", c.ClickHouseHost, c.ClickHousePort)
}

// IonmapDir returns the coefficient table directory.
func (c *Config) IonmapDir() string {
	if c.CoefficientDir != "" {
		return c.CoefficientDir
	}
	return filepath.Join(c.DataDir, "ionmap")
}

// WSPRDataDir returns the WSPR data directory path.
func (c *Config) WSPRDataDir() string {
	return filepath.Join(c.DataDir, "wspr")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
