package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/contactkeval/option-volsurface/internal/data"
	"github.com/contactkeval/option-volsurface/internal/logger"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

// EnvPrefix prefixes environment overrides, e.g. VOLSURFACE_ENGINE_WORKERS.
const EnvPrefix = "VOLSURFACE"

// Config represents the complete application configuration
type Config struct {
	Underlying string        `mapstructure:"underlying"` // default symbol for refreshes
	Market     data.Config   `mapstructure:"market"`
	Engine     EngineConfig  `mapstructure:"engine"`
	Surface    SurfaceConfig `mapstructure:"surface"`
	Storage    StorageConfig `mapstructure:"storage"`
	Server     ServerConfig  `mapstructure:"server"`
	Logging    LoggingConfig `mapstructure:"logging"`
}

// EngineConfig holds the batch engine and market context settings
type EngineConfig struct {
	volatility.Config `mapstructure:",squash"`
	RiskFreeRate      float64 `mapstructure:"risk_free_rate"`
}

// SurfaceConfig holds grid interpolation settings
type SurfaceConfig struct {
	Resolution int `mapstructure:"resolution"` // points per axis
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ServerConfig holds REST server settings
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file and environment variables.
//
// A .env file in the working directory, when present, is loaded into the
// environment first so API keys can live outside the YAML file. An empty
// path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logger.Debugf("loaded config from %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("underlying", "SPY")

	// Market data defaults
	v.SetDefault("market.provider", "synthetic")
	v.SetDefault("market.secondary", "")
	v.SetDefault("market.api_key", "")
	v.SetDefault("market.base_url", "https://api.massive.com")
	v.SetDefault("market.dir", "./data")
	v.SetDefault("market.timeout", "60s")
	v.SetDefault("market.retries", 5)
	v.SetDefault("market.seed", 42)

	// Engine defaults
	v.SetDefault("engine.workers", 0) // 0 = GOMAXPROCS
	v.SetDefault("engine.risk_free_rate", 0.0)
	v.SetDefault("engine.solver.lower_bound", 1e-6)
	v.SetDefault("engine.solver.upper_bound", 4.0)
	v.SetDefault("engine.solver.tolerance", 1e-6)
	v.SetDefault("engine.solver.max_iterations", 100)

	v.SetDefault("surface.resolution", 100)

	v.SetDefault("storage.db_path", "./data/volsurface.db")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Underlying == "" {
		return fmt.Errorf("underlying is required")
	}

	validProviders := map[string]bool{"massive": true, "polygon": true, "files": true, "local": true, "synthetic": true}
	if !validProviders[strings.ToLower(c.Market.Provider)] {
		return fmt.Errorf("market.provider must be one of: massive, files, synthetic")
	}
	if c.Market.Secondary != "" && !validProviders[strings.ToLower(c.Market.Secondary)] {
		return fmt.Errorf("market.secondary must be one of: massive, files, synthetic")
	}
	if c.Market.Retries < 0 {
		return fmt.Errorf("market.retries must not be negative")
	}

	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative")
	}
	if math.IsNaN(c.Engine.RiskFreeRate) || math.IsInf(c.Engine.RiskFreeRate, 0) {
		return fmt.Errorf("engine.risk_free_rate must be finite")
	}
	if err := c.Engine.Solver.Validate(); err != nil {
		return fmt.Errorf("engine.solver: %w", err)
	}

	if c.Surface.Resolution < 2 {
		return fmt.Errorf("surface.resolution must be at least 2")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
